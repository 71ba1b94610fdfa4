package proptype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/fieldtuple"
	"github.com/modrun/modrun/modrunerr"
)

func newInputField[T any](t *testing.T) *field.Input {
	t.Helper()
	in := field.NewInput()
	require.NoError(t, field.SetType[T](in))
	return in
}

func newResultField[T any](t *testing.T) *field.Result {
	t.Helper()
	r := field.NewResult()
	require.NoError(t, field.SetResultType[T](r))
	return r
}

func buildTuple3(t *testing.T) (fieldtuple.InputTuple, fieldtuple.InputTuple) {
	t.Helper()
	own, err := fieldtuple.NewInputTuple().Add("A", newInputField[int](t))
	require.NoError(t, err)
	own, err = own.Add("B", newInputField[int](t))
	require.NoError(t, err)
	base, err := fieldtuple.NewInputTuple().Add("C", newInputField[int](t))
	require.NoError(t, err)
	return own, base
}

// TestOrderPreservation is property 4 from spec.md §8: for a property type
// with own-inputs [A,B] and base-inputs [C], positional argument 0 lands in
// A, 1 in B, 2 in C.
func TestOrderPreservation(t *testing.T) {
	own, baseInputs := buildTuple3(t)
	base := &Base{NameStr: "Base", InTuple: baseInputs, OutTuple: fieldtuple.NewResultTuple()}
	derived := &Base{NameStr: "Derived", InTuple: own, OutTuple: fieldtuple.NewResultTuple(), BaseList: []PropertyType{base}}

	eff, err := EffectiveInputs(derived)
	require.NoError(t, err)
	require.Equal(t, 3, eff.Len())
	assert.Equal(t, []string{"A", "B", "C"}, eff.Names())

	m := field.InputMap{
		"A": eff.FieldAt(0),
		"B": eff.FieldAt(1),
		"C": eff.FieldAt(2),
	}
	require.NoError(t, WrapInputs(derived, m, 1, 2, 3))

	a, err := field.Value[int](m["A"])
	require.NoError(t, err)
	b, err := field.Value[int](m["B"])
	require.NoError(t, err)
	c, err := field.Value[int](m["C"])
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 3, c)
}

// TestAreaWrapAndUnwrap is scenario S2's property-type half: Area(double,
// double) -> double.
func TestAreaWrapAndUnwrap(t *testing.T) {
	in, err := fieldtuple.NewInputTuple().Add("length", newInputField[float64](t))
	require.NoError(t, err)
	in, err = in.Add("width", newInputField[float64](t))
	require.NoError(t, err)
	out, err := fieldtuple.NewResultTuple().Add("area", newResultField[float64](t))
	require.NoError(t, err)
	area := &Base{NameStr: "Area", InTuple: in, OutTuple: out}

	eff, err := EffectiveInputs(area)
	require.NoError(t, err)
	m := field.InputMap{
		"length": eff.FieldAt(0),
		"width":  eff.FieldAt(1),
	}
	require.NoError(t, WrapInputs(area, m, 1.23, 4.56))
	l, _ := field.Value[float64](m["length"])
	w, _ := field.Value[float64](m["width"])
	assert.InDelta(t, 1.23, l, 1e-10)
	assert.InDelta(t, 4.56, w, 1e-10)

	effOut, err := EffectiveResults(area)
	require.NoError(t, err)
	r := effOut.FieldAt(0)
	require.NoError(t, field.Produce(r, anyfield.NewOwned(l*w)))

	outMap := field.ResultMap{"area": r}
	got, err := Unwrap1[float64](area, outMap)
	require.NoError(t, err)
	assert.InDelta(t, 5.6088, got, 1e-10)
}

func TestWrapInputsWrongArgCount(t *testing.T) {
	in, err := fieldtuple.NewInputTuple().Add("x", newInputField[int](t))
	require.NoError(t, err)
	p := &Base{NameStr: "OneIn", InTuple: in, OutTuple: fieldtuple.NewResultTuple()}
	err = WrapInputs(p, field.InputMap{"x": in.FieldAt(0)}, 1, 2)
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.TypeMismatch))
}

func TestEmptyInputTupleWrapIsNoop(t *testing.T) {
	p := &Base{NameStr: "NoIn", InTuple: fieldtuple.NewInputTuple(), OutTuple: fieldtuple.NewResultTuple()}
	err := WrapInputs(p, field.InputMap{})
	require.NoError(t, err)
}

// TestImplicitConversion is scenario S5: wrapping a field declared as
// ToClass with a FromClass argument should convert via a registered
// converter and produce ToClass{X: From.X*2}.
func TestImplicitConversion(t *testing.T) {
	type FromClass struct{ X int }
	type ToClass struct{ X int }
	RegisterConverter(func(f FromClass) ToClass { return ToClass{X: f.X * 2} })

	toField := field.NewInput()
	require.NoError(t, field.SetType[ToClass](toField))
	in, err := fieldtuple.NewInputTuple().Add("v", toField)
	require.NoError(t, err)
	p := &Base{NameStr: "TakesToClass", InTuple: in, OutTuple: fieldtuple.NewResultTuple()}

	m := field.InputMap{"v": toField}
	require.NoError(t, WrapInputs(p, m, FromClass{X: 1}))

	got, err := field.Value[ToClass](toField)
	require.NoError(t, err)
	assert.Equal(t, ToClass{X: 2}, got)
}

func TestUnwrapOutputsMissingFieldFails(t *testing.T) {
	out, err := fieldtuple.NewResultTuple().Add("only", newResultField[int](t))
	require.NoError(t, err)
	p := &Base{NameStr: "P", InTuple: fieldtuple.NewInputTuple(), OutTuple: out}
	_, err = UnwrapOutputs(p, field.ResultMap{})
	require.Error(t, err)
	assert.True(t, modrunerr.Is(err, modrunerr.MissingKey))
}
