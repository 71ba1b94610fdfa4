// Package proptype implements the PropertyType contract: the ordered
// input/result field tuples a computable property declares, inheritance
// from base property types, and the wrap/unwrap routines that convert
// between positional call arguments and the module's name-indexed field
// maps. Grounded on the original design's property_type.hpp and the
// concrete Area/PrismVolume property types in
// SDE_Test/examples/TestPropertyType.hpp.
//
// Go has no curiously-recurring-template equivalent, so a PropertyType
// here is an interface carrying two FieldTuple descriptors rather than a
// type resolved at compile time (see DESIGN.md, Open Question: "Compile-time
// polymorphism for PropertyType").
package proptype

import (
	"reflect"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/fieldtuple"
	"github.com/modrun/modrun/modrunerr"
)

// PropertyType is the static contract a module may satisfy.
type PropertyType interface {
	Name() string
	Inputs() fieldtuple.InputTuple
	Results() fieldtuple.ResultTuple
	Bases() []PropertyType
}

// EffectiveInputs returns p's own input tuple concatenated with the
// effective input tuples of every base, own-first then base-first in
// declaration order.
func EffectiveInputs(p PropertyType) (fieldtuple.InputTuple, error) {
	eff := p.Inputs()
	for _, b := range p.Bases() {
		beff, err := EffectiveInputs(b)
		if err != nil {
			return fieldtuple.InputTuple{}, err
		}
		eff, err = fieldtuple.ConcatInputs(eff, beff)
		if err != nil {
			return fieldtuple.InputTuple{}, err
		}
	}
	return eff, nil
}

// EffectiveResults is EffectiveInputs' Result-tuple analogue.
func EffectiveResults(p PropertyType) (fieldtuple.ResultTuple, error) {
	eff := p.Results()
	for _, b := range p.Bases() {
		beff, err := EffectiveResults(b)
		if err != nil {
			return fieldtuple.ResultTuple{}, err
		}
		eff, err = fieldtuple.ConcatResults(eff, beff)
		if err != nil {
			return fieldtuple.ResultTuple{}, err
		}
	}
	return eff, nil
}

type converterKey struct {
	from reflect.Type
	to   reflect.Type
}

var converters = map[converterKey]func(any) any{}

// RegisterConverter installs an implicit conversion used by WrapInputs when
// a positional argument's concrete type does not match a field's declared
// type but a conversion from From to To has been registered. This stands in
// for the original's implicit-constructor convertibility (S5: wrapping a
// ToClass-typed field with a FromClass argument).
func RegisterConverter[From, To any](fn func(From) To) {
	var f From
	var t To
	converters[converterKey{from: reflect.TypeOf(f), to: reflect.TypeOf(t)}] = func(v any) any {
		return fn(v.(From))
	}
}

// WrapInputs assigns args into m in the effective, own-then-base order
// declared by p. Position i must be the declared type of the i-th
// effective field, or convertible to it via a registered converter;
// otherwise WrapInputs fails with TypeMismatch naming the position and both
// types.
func WrapInputs(p PropertyType, m field.InputMap, args ...any) error {
	eff, err := EffectiveInputs(p)
	if err != nil {
		return err
	}
	if eff.Len() == 0 {
		return nil
	}
	if len(args) != eff.Len() {
		return modrunerr.Newf(modrunerr.TypeMismatch, "wrap_inputs: %s expects %d positional arguments, got %d", p.Name(), eff.Len(), len(args))
	}
	for i := 0; i < eff.Len(); i++ {
		name := eff.NameAt(i)
		decl := eff.FieldAt(i)
		target, ok := m[name]
		if !ok {
			return modrunerr.Newf(modrunerr.MissingKey, "wrap_inputs: module has no input field named %q", name)
		}
		arg := args[i]
		argTyp := reflect.TypeOf(arg)
		declTyp := decl.Type()
		if declTyp != nil && argTyp != declTyp {
			if conv, ok := converters[converterKey{from: argTyp, to: declTyp}]; ok {
				arg = conv(arg)
			} else {
				return modrunerr.Newf(modrunerr.TypeMismatch, "wrap_inputs: position %d (%q) wants %s, got %s", i, name, declTyp, argTyp)
			}
		}
		av := anyfield.NewOwned(arg)
		if err := field.Change(target, av); err != nil {
			return err
		}
	}
	return nil
}

// UnwrapOutputs returns the produced values of m in the effective,
// own-then-base result order declared by p. Fails with MissingKey if m
// lacks a declared field.
func UnwrapOutputs(p PropertyType, m field.ResultMap) ([]anyfield.AnyField, error) {
	eff, err := EffectiveResults(p)
	if err != nil {
		return nil, err
	}
	out := make([]anyfield.AnyField, eff.Len())
	for i := 0; i < eff.Len(); i++ {
		name := eff.NameAt(i)
		r, ok := m[name]
		if !ok {
			return nil, modrunerr.Newf(modrunerr.MissingKey, "unwrap_outputs: module has no result field named %q", name)
		}
		out[i] = r.RawValue()
	}
	return out, nil
}

// Unwrap1 gives typed access to a single-result property type's output,
// standing in for the original's structured-binding unpacking.
func Unwrap1[A any](p PropertyType, m field.ResultMap) (A, error) {
	var zero A
	vals, err := UnwrapOutputs(p, m)
	if err != nil {
		return zero, err
	}
	if len(vals) < 1 {
		return zero, modrunerr.Newf(modrunerr.MissingKey, "unwrap1: %s declares no results", p.Name())
	}
	return anyfield.Cast[A](vals[0])
}

// Unwrap2 is Unwrap1 for a two-result property type.
func Unwrap2[A, B any](p PropertyType, m field.ResultMap) (A, B, error) {
	var za A
	var zb B
	vals, err := UnwrapOutputs(p, m)
	if err != nil {
		return za, zb, err
	}
	if len(vals) < 2 {
		return za, zb, modrunerr.Newf(modrunerr.MissingKey, "unwrap2: %s declares fewer than 2 results", p.Name())
	}
	a, err := anyfield.Cast[A](vals[0])
	if err != nil {
		return za, zb, err
	}
	b, err := anyfield.Cast[B](vals[1])
	if err != nil {
		return za, zb, err
	}
	return a, b, nil
}

// Unwrap3 is Unwrap1 for a three-result property type.
func Unwrap3[A, B, C any](p PropertyType, m field.ResultMap) (A, B, C, error) {
	var za A
	var zb B
	var zc C
	vals, err := UnwrapOutputs(p, m)
	if err != nil {
		return za, zb, zc, err
	}
	if len(vals) < 3 {
		return za, zb, zc, modrunerr.Newf(modrunerr.MissingKey, "unwrap3: %s declares fewer than 3 results", p.Name())
	}
	a, err := anyfield.Cast[A](vals[0])
	if err != nil {
		return za, zb, zc, err
	}
	b, err := anyfield.Cast[B](vals[1])
	if err != nil {
		return za, zb, zc, err
	}
	c, err := anyfield.Cast[C](vals[2])
	if err != nil {
		return za, zb, zc, err
	}
	return a, b, c, nil
}

// Base is a trivial PropertyType implementation for declaring property
// types ad hoc (used by examples and tests rather than hand-rolling the
// interface each time).
type Base struct {
	NameStr  string
	InTuple  fieldtuple.InputTuple
	OutTuple fieldtuple.ResultTuple
	BaseList []PropertyType
}

func (b *Base) Name() string                      { return b.NameStr }
func (b *Base) Inputs() fieldtuple.InputTuple      { return b.InTuple }
func (b *Base) Results() fieldtuple.ResultTuple    { return b.OutTuple }
func (b *Base) Bases() []PropertyType              { return b.BaseList }
