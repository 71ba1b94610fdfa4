// Package anyfield implements the type-erased value container that carries
// arbitrary-typed values between the loosely coupled components of the
// module runtime: AnyField.
package anyfield

import (
	"fmt"
	"reflect"

	"github.com/modrun/modrun/modrunerr"
)

// Mode is the storage discipline of an AnyField.
type Mode int

const (
	// ModeEmpty is the zero value: no type, no value.
	ModeEmpty Mode = iota
	// ModeOwned holds a mutable, independently owned value.
	ModeOwned
	// ModeConstOwned holds an owned value that may not be mutated through
	// this field.
	ModeConstOwned
	// ModeConstRef aliases an external value; the field does not own it.
	ModeConstRef
)

func (m Mode) String() string {
	switch m {
	case ModeOwned:
		return "owned"
	case ModeConstOwned:
		return "const-owned"
	case ModeConstRef:
		return "const-ref"
	default:
		return "empty"
	}
}

// AnyField is a type-erased container. Once constructed with a given type
// tag its type never changes; reassignment replaces the whole field.
//
// Internally, the wrapped value always lives behind a *T (boxed as `any`):
// for ModeOwned/ModeConstOwned it is a pointer to a field-private copy; for
// ModeConstRef it is the caller's own pointer. Storing everything behind a
// pointer is what lets Cast[*T] hand back a genuinely live, mutable
// reference for ModeOwned fields (spec.md §4.1: "an owned field is
// convertible to a mutable reference") instead of merely a copy of the
// wrapped value.
type AnyField struct {
	mode Mode
	typ  reflect.Type
	ptr  any // always a *T for the declared type, nil iff mode == ModeEmpty
}

// Empty returns the zero AnyField: no type, no value.
func Empty() AnyField { return AnyField{} }

// NewOwned builds an AnyField in owned-value mode, deep-copyable and
// mutable through the declared type.
func NewOwned[T any](v T) AnyField {
	p := new(T)
	*p = v
	return AnyField{mode: ModeOwned, typ: reflect.TypeOf(v), ptr: p}
}

// NewConstOwned builds an AnyField holding its own copy of v but forbidding
// mutation through Cast.
func NewConstOwned[T any](v T) AnyField {
	p := new(T)
	*p = v
	return AnyField{mode: ModeConstOwned, typ: reflect.TypeOf(v), ptr: p}
}

// NewConstRef builds an AnyField that aliases the referent pointed to by
// ref. The caller is responsible for the referent outliving every use of
// the field that does not go through Copy.
func NewConstRef[T any](ref *T) AnyField {
	var zero T
	typ := reflect.TypeOf(zero)
	return AnyField{mode: ModeConstRef, typ: typ, ptr: ref}
}

// NewResult builds an AnyField suitable for a Result field: reference
// storage modes are not permitted for results, so NewResult always
// constructs owned storage. It mirrors make_any_result from the original
// design; the error return takes the place of that design's compile-time
// assertion (Go cannot enforce the constraint statically across arbitrary
// T), and since the storage is always owned it is always nil.
func NewResult[T any](v T) (AnyField, error) {
	return NewOwned(v), nil
}

// Type reports the runtime type tag of the wrapped value, or nil when the
// field is empty.
func (f AnyField) Type() reflect.Type { return f.typ }

// HasValue reports whether the field carries a value of any mode.
func (f AnyField) HasValue() bool { return f.mode != ModeEmpty }

// OwnsValue reports whether the field's storage is independent of any
// external referent (owned or const-owned).
func (f AnyField) OwnsValue() bool {
	return f.mode == ModeOwned || f.mode == ModeConstOwned
}

// Mode reports the storage discipline in effect.
func (f AnyField) Mode() Mode { return f.mode }

// resolved returns the dereferenced wrapped value, regardless of storage
// mode. ok is false only when the field is empty or a const-ref's referent
// pointer is nil.
func (f AnyField) resolved() (any, bool) {
	if f.mode == ModeEmpty || f.ptr == nil {
		return nil, false
	}
	rv := reflect.ValueOf(f.ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, false
	}
	return rv.Elem().Interface(), true
}

// Cast interprets the wrapped value as U. It fails with a type-mismatch
// error when U is incompatible with the stored type, with a
// reference-escape error when U is a pointer type and the field's storage
// mode forbids handing out a live reference (everything but ModeOwned), and
// with a type-mismatch error carrying the empty marker when the field holds
// no value at all.
func Cast[U any](f AnyField) (U, error) {
	var zero U
	if f.mode == ModeEmpty {
		return zero, modrunerr.Newf(modrunerr.TypeMismatch, "any_cast: field is empty, cannot cast to %T", zero)
	}

	zeroTyp := reflect.TypeOf(zero)
	wantPtr := zeroTyp != nil && zeroTyp.Kind() == reflect.Ptr
	if wantPtr {
		if f.mode != ModeOwned {
			return zero, modrunerr.Newf(modrunerr.ReferenceEscape, "any_cast: cannot obtain a live reference from a %s field", f.mode)
		}
		u, ok := f.ptr.(U)
		if !ok {
			return zero, modrunerr.Newf(modrunerr.TypeMismatch, "any_cast: stored type %s is not assignable to %T", f.typ, zero)
		}
		return u, nil
	}

	v, ok := f.resolved()
	if !ok {
		return zero, modrunerr.Newf(modrunerr.ReferenceEscape, "any_cast: field's referent is gone")
	}
	u, ok := v.(U)
	if !ok {
		return zero, modrunerr.Newf(modrunerr.TypeMismatch, "any_cast: stored type %T is not assignable to %T", v, zero)
	}
	return u, nil
}

// Copy returns an independent AnyField. A const-ref field is deep-copied
// into const-owned storage so the result cannot dangle; owned and
// const-owned fields are already backed by a field-private pointer, so
// copying them duplicates that pointee rather than sharing it.
func Copy(f AnyField) AnyField {
	v, ok := f.resolved()
	if !ok {
		if f.mode == ModeEmpty {
			return AnyField{}
		}
		return AnyField{mode: ModeConstOwned, typ: f.typ}
	}
	mode := f.mode
	if mode == ModeConstRef {
		mode = ModeConstOwned
	}
	rv := reflect.New(f.typ)
	rv.Elem().Set(reflect.ValueOf(v))
	return AnyField{mode: mode, typ: f.typ, ptr: rv.Interface()}
}

// Equal reports whether two AnyFields are equal: both empty, or both
// non-empty with equal wrapped values of the same type tag.
func Equal(a, b AnyField) bool {
	if a.mode == ModeEmpty && b.mode == ModeEmpty {
		return true
	}
	if a.mode == ModeEmpty || b.mode == ModeEmpty {
		return false
	}
	if a.typ != b.typ {
		return false
	}
	av, aok := a.resolved()
	bv, bok := b.resolved()
	if !aok || !bok {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// Compare orders two non-empty AnyFields of the same underlying type when
// that type supports ordering (a concrete comparable via Go's built-in
// operators). ok is false when the values are not of comparable kinds.
//
// Only int, int64, float64, float32, and string are recognized; any other
// wrapped type reports ok=false rather than attempting a reflect-based
// ordering.
func Compare(a, b AnyField) (less bool, ok bool) {
	av, aok := a.resolved()
	bv, bok := b.resolved()
	if !aok || !bok || a.typ != b.typ {
		return false, false
	}
	switch x := av.(type) {
	case int:
		y := bv.(int)
		return x < y, true
	case int64:
		y := bv.(int64)
		return x < y, true
	case float64:
		y := bv.(float64)
		return x < y, true
	case float32:
		y := bv.(float32)
		return x < y, true
	case string:
		y := bv.(string)
		return x < y, true
	default:
		return false, false
	}
}

// String writes a human-readable representation of the wrapped value.
func (f AnyField) String() string {
	if f.mode == ModeEmpty {
		return "<empty>"
	}
	v, ok := f.resolved()
	if !ok {
		return "<dangling const-ref>"
	}
	return fmt.Sprintf("%v", v)
}
