package modrun

import (
	"sync/atomic"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/fieldtuple"
	"github.com/modrun/modrun/modrunerr"
	"github.com/modrun/modrun/proptype"
)

// Demo property types and ModuleBase implementations exercising the
// concrete scenarios against a live Module/ModuleManager, the way
// modules/caddyhttp registers toy handlers for its own tests.

func init() {
	RegisterModuleType("test.rectangle.registered", func() ModuleBase { return rectangleModule{} })
	RegisterModuleType("test.prism.registered", func() ModuleBase { return prismModule{} })
	RegisterModuleType("test.add.registered", func() ModuleBase { return addModule{} })
}

func mustInput[T any]() *field.Input {
	in := field.NewInput()
	if err := field.SetType[T](in); err != nil {
		panic(err)
	}
	return in
}

func mustResult[T any]() *field.Result {
	r := field.NewResult()
	if err := field.SetResultType[T](r); err != nil {
		panic(err)
	}
	return r
}

func mustInputs(pairs ...any) fieldtuple.InputTuple {
	t := fieldtuple.NewInputTuple()
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		in := pairs[i+1].(*field.Input)
		var err error
		t, err = t.Add(name, in)
		if err != nil {
			panic(err)
		}
	}
	return t
}

func mustResults(pairs ...any) fieldtuple.ResultTuple {
	t := fieldtuple.NewResultTuple()
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		r := pairs[i+1].(*field.Result)
		var err error
		t, err = t.Add(name, r)
		if err != nil {
			panic(err)
		}
	}
	return t
}

// addPropertyType is scenario S1's identity-add contract: Add(int,int)->int.
var addPropertyType = &proptype.Base{
	NameStr:  "test.Add",
	InTuple:  mustInputs("a", mustInput[int](), "b", mustInput[int]()),
	OutTuple: mustResults("sum", mustResult[int]()),
}

// areaPropertyType is scenario S2: Area(double,double)->double.
var areaPropertyType = &proptype.Base{
	NameStr:  "test.Area",
	InTuple:  mustInputs("length", mustInput[float64](), "width", mustInput[float64]()),
	OutTuple: mustResults("area", mustResult[float64]()),
}

// prismVolumePropertyType is scenario S3: PrismVolume inherits Area's
// length/width inputs and area result, adding its own height input and
// volume result.
var prismVolumePropertyType = &proptype.Base{
	NameStr:  "test.PrismVolume",
	InTuple:  mustInputs("height", mustInput[float64]()),
	OutTuple: mustResults("volume", mustResult[float64]()),
	BaseList: []proptype.PropertyType{areaPropertyType},
}

type addModule struct{}

func (addModule) Describe() ModuleDescriptor {
	return ModuleDescriptor{PropertyTypes: []proptype.PropertyType{addPropertyType}}
}

func (addModule) Run(_ Context, inputs field.InputMap, _ SubmoduleMap) (field.ResultMap, error) {
	a, err := field.Value[int](inputs["a"])
	if err != nil {
		return nil, err
	}
	b, err := field.Value[int](inputs["b"])
	if err != nil {
		return nil, err
	}
	r := field.NewResult()
	if err := field.SetResultType[int](r); err != nil {
		return nil, err
	}
	if err := field.Produce(r, anyfield.NewOwned(a+b)); err != nil {
		return nil, err
	}
	return field.ResultMap{"sum": r}, nil
}

type rectangleModule struct{}

func (rectangleModule) Describe() ModuleDescriptor {
	return ModuleDescriptor{PropertyTypes: []proptype.PropertyType{areaPropertyType}}
}

func (rectangleModule) Run(_ Context, inputs field.InputMap, _ SubmoduleMap) (field.ResultMap, error) {
	length, err := field.Value[float64](inputs["length"])
	if err != nil {
		return nil, err
	}
	width, err := field.Value[float64](inputs["width"])
	if err != nil {
		return nil, err
	}
	r := field.NewResult()
	if err := field.SetResultType[float64](r); err != nil {
		return nil, err
	}
	if err := field.Produce(r, anyfield.NewOwned(length*width)); err != nil {
		return nil, err
	}
	return field.ResultMap{"area": r}, nil
}

// prismModule delegates area to a bound "shape" submodule, the runtime
// analogue of the original's submodule-request-driven composition.
type prismModule struct{}

func (prismModule) Describe() ModuleDescriptor {
	return ModuleDescriptor{
		PropertyTypes: []proptype.PropertyType{prismVolumePropertyType},
		Submodules:    map[string]proptype.PropertyType{"shape": areaPropertyType},
	}
}

func (prismModule) Run(ctx Context, inputs field.InputMap, submods SubmoduleMap) (field.ResultMap, error) {
	height, err := field.Value[float64](inputs["height"])
	if err != nil {
		return nil, err
	}
	length, err := field.Value[float64](inputs["length"])
	if err != nil {
		return nil, err
	}
	width, err := field.Value[float64](inputs["width"])
	if err != nil {
		return nil, err
	}

	shape, ok := submods["shape"]
	if !ok {
		return nil, modrunerr.Newf(modrunerr.MissingKey, "prism: no shape submodule slot")
	}
	areaResults, err := shape.RunAs(ctx, areaPropertyType, length, width)
	if err != nil {
		return nil, err
	}
	area, err := proptype.Unwrap1[float64](areaPropertyType, areaResults)
	if err != nil {
		return nil, err
	}

	areaResult := field.NewResult()
	if err := field.SetResultType[float64](areaResult); err != nil {
		return nil, err
	}
	if err := field.Produce(areaResult, anyfield.NewOwned(area)); err != nil {
		return nil, err
	}

	volumeResult := field.NewResult()
	if err := field.SetResultType[float64](volumeResult); err != nil {
		return nil, err
	}
	if err := field.Produce(volumeResult, anyfield.NewOwned(area*height)); err != nil {
		return nil, err
	}

	return field.ResultMap{"area": areaResult, "volume": volumeResult}, nil
}

// countingModule counts its own Run invocations, letting tests distinguish a
// cache hit (counter unchanged) from a miss (counter incremented).
type countingModule struct {
	calls *int64
}

func (m *countingModule) Describe() ModuleDescriptor {
	return ModuleDescriptor{PropertyTypes: []proptype.PropertyType{addPropertyType}}
}

func (m *countingModule) Run(_ Context, inputs field.InputMap, _ SubmoduleMap) (field.ResultMap, error) {
	atomic.AddInt64(m.calls, 1)
	a, _ := field.Value[int](inputs["a"])
	b, _ := field.Value[int](inputs["b"])
	r := field.NewResult()
	_ = field.SetResultType[int](r)
	_ = field.Produce(r, anyfield.NewOwned(a+b))
	return field.ResultMap{"sum": r}, nil
}
