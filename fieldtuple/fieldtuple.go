// Package fieldtuple implements the ordered, name-indexed field sequences
// used to declare a PropertyType's inputs and results, and the
// concatenation rule that layers base-property-type fields onto derived
// ones. Grounded on the original design's FieldTuple
// (pluginplay/field/field_tuple.hpp); Go has no variadic-template
// equivalent, so a FieldTuple here is a runtime-checked ordered slice
// rather than a type that encodes its field types at compile time — an
// Open Question resolution recorded in DESIGN.md.
package fieldtuple

import (
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
)

// InputTuple is an ordered, name-indexed sequence of Input fields.
type InputTuple struct {
	names  []string
	fields []*field.Input
}

// NewInputTuple returns the empty input tuple.
func NewInputTuple() InputTuple { return InputTuple{} }

// Add returns a new tuple one larger than t, with name bound to f appended
// at the end. The original t is left untouched; per the spec's chaining
// requirement the returned tuple must be used, not the receiver. Fails with
// DuplicateKey if name already appears in t.
func (t InputTuple) Add(name string, f *field.Input) (InputTuple, error) {
	for _, n := range t.names {
		if n == name {
			return InputTuple{}, modrunerr.Newf(modrunerr.DuplicateKey, "add_field: duplicate input name %q", name)
		}
	}
	out := InputTuple{
		names:  append(append([]string{}, t.names...), name),
		fields: append(append([]*field.Input{}, t.fields...), f),
	}
	return out, nil
}

// Len reports the number of fields in the tuple.
func (t InputTuple) Len() int { return len(t.names) }

// Names returns the field names in declared order.
func (t InputTuple) Names() []string { return append([]string(nil), t.names...) }

// At looks up a field by name. O(n), per the spec.
func (t InputTuple) At(name string) (*field.Input, error) {
	for i, n := range t.names {
		if n == name {
			return t.fields[i], nil
		}
	}
	return nil, modrunerr.Newf(modrunerr.MissingKey, "at: no input field named %q", name)
}

// NameAt and FieldAt give positional access, used by wrap_inputs ordering.
func (t InputTuple) NameAt(i int) string       { return t.names[i] }
func (t InputTuple) FieldAt(i int) *field.Input { return t.fields[i] }

// ConcatInputs returns a followed by b's fields, rejecting duplicate names
// across the two operands.
func ConcatInputs(a, b InputTuple) (InputTuple, error) {
	out := a
	for i, n := range b.names {
		var err error
		out, err = out.Add(n, b.fields[i])
		if err != nil {
			return InputTuple{}, err
		}
	}
	return out, nil
}

// ResultTuple is the Result-field analogue of InputTuple.
type ResultTuple struct {
	names  []string
	fields []*field.Result
}

// NewResultTuple returns the empty result tuple.
func NewResultTuple() ResultTuple { return ResultTuple{} }

// Add returns a new tuple with name bound to f appended.
func (t ResultTuple) Add(name string, f *field.Result) (ResultTuple, error) {
	for _, n := range t.names {
		if n == name {
			return ResultTuple{}, modrunerr.Newf(modrunerr.DuplicateKey, "add_field: duplicate result name %q", name)
		}
	}
	out := ResultTuple{
		names:  append(append([]string{}, t.names...), name),
		fields: append(append([]*field.Result{}, t.fields...), f),
	}
	return out, nil
}

func (t ResultTuple) Len() int         { return len(t.names) }
func (t ResultTuple) Names() []string  { return append([]string(nil), t.names...) }

func (t ResultTuple) At(name string) (*field.Result, error) {
	for i, n := range t.names {
		if n == name {
			return t.fields[i], nil
		}
	}
	return nil, modrunerr.Newf(modrunerr.MissingKey, "at: no result field named %q", name)
}

func (t ResultTuple) NameAt(i int) string        { return t.names[i] }
func (t ResultTuple) FieldAt(i int) *field.Result { return t.fields[i] }

// ConcatResults returns a followed by b's fields, rejecting duplicate names.
func ConcatResults(a, b ResultTuple) (ResultTuple, error) {
	out := a
	for i, n := range b.names {
		var err error
		out, err = out.Add(n, b.fields[i])
		if err != nil {
			return ResultTuple{}, err
		}
	}
	return out, nil
}
