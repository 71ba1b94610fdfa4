// Package field implements the typed Input and Result slots that carry a
// single named parameter or output between a Module and its ModuleBase,
// grounded on the original design's module_input.hpp/module_input_pimpl.hpp
// (pluginplay/fields/module_input.hpp and
// src/pluginplay/detail_/module_input_pimpl.hpp in the retrieved original
// source).
package field

import (
	"fmt"
	"reflect"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/modrunerr"
)

// Check is a named validity predicate evaluated against a field's bound
// AnyField. Desc is surfaced verbatim in bounds-check-failure errors.
type Check struct {
	Desc string
	Pred func(anyfield.AnyField) bool
}

// Input is a named, typed parameter slot: declared type, optional bound
// value, description, optional/transparent flags, and an ordered set of
// named validity checks.
type Input struct {
	typ         reflect.Type
	value       anyfield.AnyField
	hasValue    bool
	description string
	optional    bool
	transparent bool
	checks      []Check
}

// NewInput returns a zero Input with no declared type yet.
func NewInput() *Input { return &Input{} }

// SetType declares the accepted type T. Installs an implicit
// type-membership check; may not be called to change to an incompatible
// type once a value has been bound (the type itself simply cannot change
// after first use in this implementation — attempting to rebind fails with
// TypeMismatch).
func SetType[T any](in *Input) error {
	var zero T
	newTyp := reflect.TypeOf(zero)
	if in.typ != nil && in.hasValue && in.typ != newTyp {
		return modrunerr.Newf(modrunerr.TypeMismatch, "set_type: input already bound to value of type %s, cannot redeclare as %s", in.typ, newTyp)
	}
	in.typ = newTyp
	return nil
}

// HasType reports whether SetType has been called.
func (in *Input) HasType() bool { return in.typ != nil }

// HasValue reports whether a value is currently bound.
func (in *Input) HasValue() bool { return in.hasValue }

// HasDescription reports whether a description has been set.
func (in *Input) HasDescription() bool { return in.description != "" }

// IsOptional reports the optional flag.
func (in *Input) IsOptional() bool { return in.optional }

// IsTransparent reports the transparent (memoization-excluded) flag.
func (in *Input) IsTransparent() bool { return in.transparent }

// Ready reports whether this input is usable in a Run call: optional, or
// bound to a value.
func (in *Input) Ready() bool { return in.optional || in.hasValue }

// IsValid reports whether the currently bound value passes every check.
func (in *Input) IsValid() bool {
	if !in.hasValue {
		return true
	}
	_, failing := in.failingChecks()
	return len(failing) == 0
}

func (in *Input) failingChecks() (anyfield.AnyField, []string) {
	var failing []string
	for _, c := range in.checks {
		if !c.Pred(in.value) {
			failing = append(failing, c.Desc)
		}
	}
	return in.value, failing
}

// Change binds v as the field's value. Fails with TypeNotSet if SetType has
// not been called, with TypeMismatch if v's type is not assignable to the
// declared type, or with BoundsCheckFailure (naming every failing check) if
// any check rejects it.
func Change(in *Input, v anyfield.AnyField) error {
	if in.typ == nil {
		return modrunerr.Newf(modrunerr.TypeNotSet, "change: input type has not been set")
	}
	if v.HasValue() && v.Type() != in.typ {
		return modrunerr.Newf(modrunerr.TypeMismatch, "change: value of type %s is not assignable to declared type %s", v.Type(), in.typ)
	}
	prev := in.value
	prevHas := in.hasValue
	in.value = v
	in.hasValue = v.HasValue()
	if in.hasValue {
		if _, failing := in.failingChecks(); len(failing) > 0 {
			in.value = prev
			in.hasValue = prevHas
			return modrunerr.Newf(modrunerr.BoundsCheckFailure, "change: value fails checks: %v", failing)
		}
	}
	return nil
}

// SetDefault is an alias for Change used when binding the module-declared
// default value rather than a caller override.
func SetDefault(in *Input, v anyfield.AnyField) error { return Change(in, v) }

// SetDescription records a human description for the field.
func (in *Input) SetDescription(desc string) { in.description = desc }

// Description returns the field's description.
func (in *Input) Description() string { return in.description }

// AddCheck appends a named validity check. If a value is already bound it
// must pass the new check immediately, or AddCheck fails with
// BoundsCheckFailure.
func AddCheck(in *Input, desc string, pred func(anyfield.AnyField) bool) error {
	if in.hasValue && !pred(in.value) {
		return modrunerr.Newf(modrunerr.BoundsCheckFailure, "add_check: current value fails new check %q", desc)
	}
	in.checks = append(in.checks, Check{Desc: desc, Pred: pred})
	return nil
}

// CheckDescriptions lists every check's description in declaration order.
func (in *Input) CheckDescriptions() []string {
	out := make([]string, len(in.checks))
	for i, c := range in.checks {
		out[i] = c.Desc
	}
	return out
}

// MakeOptional / MakeRequired / MakeOpaque / MakeTransparent are the flag
// setters named by the external interface.
func (in *Input) MakeOptional() *Input    { in.optional = true; return in }
func (in *Input) MakeRequired() *Input    { in.optional = false; return in }
func (in *Input) MakeOpaque() *Input      { in.transparent = false; return in }
func (in *Input) MakeTransparent() *Input { in.transparent = true; return in }

// Value unwraps the bound AnyField as U via anyfield.Cast.
func Value[U any](in *Input) (U, error) {
	var zero U
	if !in.hasValue {
		return zero, modrunerr.Newf(modrunerr.TypeMismatch, "value: input has no bound value")
	}
	return anyfield.Cast[U](in.value)
}

// RawValue returns the bound AnyField as-is (Empty if unbound).
func (in *Input) RawValue() anyfield.AnyField { return in.value }

// Type returns the declared type, or nil if unset.
func (in *Input) Type() reflect.Type { return in.typ }

// EqualInput compares type, value presence, value, description, and the
// optional/transparent flags. Checks are predicates and are not
// structurally comparable, so they are excluded per the spec's equality
// rule.
func EqualInput(a, b *Input) bool {
	if a.typ != b.typ || a.hasValue != b.hasValue {
		return false
	}
	if a.hasValue && !anyfield.Equal(a.value, b.value) {
		return false
	}
	return a.description == b.description && a.optional == b.optional && a.transparent == b.transparent
}

func (in *Input) String() string {
	if !in.hasValue {
		return fmt.Sprintf("<input %s: unset>", in.typ)
	}
	return fmt.Sprintf("<input %s: %s>", in.typ, in.value.String())
}

// Clone returns an independent copy of in, deep-copying any const-ref bound
// value the same way AnyField.Copy does.
func (in *Input) Clone() *Input {
	out := *in
	out.value = anyfield.Copy(in.value)
	out.checks = append([]Check(nil), in.checks...)
	return &out
}

// Result is a named, typed output slot. Reference storage modes are
// forbidden: only owned/const-owned values may be produced.
type Result struct {
	typ         reflect.Type
	value       anyfield.AnyField
	hasValue    bool
	description string
}

// NewResult returns a zero Result with no declared type yet.
func NewResult() *Result { return &Result{} }

// SetResultType declares the accepted type T for a Result field.
func SetResultType[T any](r *Result) error {
	var zero T
	r.typ = reflect.TypeOf(zero)
	return nil
}

// HasType, HasValue, HasDescription mirror Input's accessors.
func (r *Result) HasType() bool        { return r.typ != nil }
func (r *Result) HasValue() bool       { return r.hasValue }
func (r *Result) HasDescription() bool { return r.description != "" }

// Produce stores v as the result's produced value. Fails with TypeNotSet if
// SetResultType has not been called, with ReferenceEscape if v's mode is a
// reference mode, or with TypeMismatch if its type disagrees with the
// declared type.
func Produce(r *Result, v anyfield.AnyField) error {
	if r.typ == nil {
		return modrunerr.Newf(modrunerr.TypeNotSet, "produce: result type has not been set")
	}
	if v.Mode() == anyfield.ModeConstRef {
		return modrunerr.Newf(modrunerr.ReferenceEscape, "produce: result fields cannot hold reference storage")
	}
	if v.HasValue() && v.Type() != r.typ {
		return modrunerr.Newf(modrunerr.TypeMismatch, "produce: value of type %s is not assignable to declared type %s", v.Type(), r.typ)
	}
	r.value = v
	r.hasValue = v.HasValue()
	return nil
}

// ResultValue unwraps the produced AnyField as U.
func ResultValue[U any](r *Result) (U, error) {
	var zero U
	if !r.hasValue {
		return zero, modrunerr.Newf(modrunerr.TypeMismatch, "value: result has no produced value")
	}
	return anyfield.Cast[U](r.value)
}

// RawValue returns the produced AnyField as-is.
func (r *Result) RawValue() anyfield.AnyField { return r.value }

// Description and SetDescription mirror Input's.
func (r *Result) Description() string      { return r.description }
func (r *Result) SetDescription(d string)  { r.description = d }

func (r *Result) String() string {
	if !r.hasValue {
		return fmt.Sprintf("<result %s: unset>", r.typ)
	}
	return fmt.Sprintf("<result %s: %s>", r.typ, r.value.String())
}

// Clone returns an independent copy of r.
func (r *Result) Clone() *Result {
	out := *r
	out.value = anyfield.Copy(r.value)
	return &out
}

// InputMap and ResultMap are the name-indexed maps threaded through a
// Module's Run call.
type InputMap map[string]*Input
type ResultMap map[string]*Result

// CloneInputs returns an independent copy of m.
func CloneInputs(m InputMap) InputMap {
	out := make(InputMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// CloneResults returns an independent copy of m.
func CloneResults(m ResultMap) ResultMap {
	out := make(ResultMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
