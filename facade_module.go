package modrun

import (
	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
	"github.com/modrun/modrun/proptype"
)

// facadeModule wraps a plain Go callable as a ModuleBase, the runtime's
// analogue of the original's FacadeModule/LambdaModule
// (tests/detail_/facade_module.cpp, tests/detail_/lambda_module.cpp): a
// computation expressed as a closure rather than a registered type, useful
// for wiring a literal or ad hoc function into a submodule slot. Grounded on
// facade_module.cpp's "FacadeModule : is_memoizable" case: a bare callable
// has no general way to be fingerprinted, so every Module built from one
// starts with memoization off (DESIGN.md, Open Question "Fingerprinting of
// facade/lambda modules") until a caller vouches for purity with
// Module.TurnOnMemoization.
type facadeModule struct {
	p  proptype.PropertyType
	fn func() ([]any, error)
}

// NewFacadeModule returns a ModuleBase that runs fn and wraps its returned
// values into p's declared, own-then-base result order. fn's return slice
// must have exactly as many elements as p.EffectiveResults, in that order.
func NewFacadeModule(p proptype.PropertyType, fn func() ([]any, error)) ModuleBase {
	return &facadeModule{p: p, fn: fn}
}

func (f *facadeModule) Describe() ModuleDescriptor {
	return ModuleDescriptor{
		PropertyTypes:          []proptype.PropertyType{f.p},
		NonMemoizableByDefault: true,
	}
}

func (f *facadeModule) Run(_ Context, _ field.InputMap, _ SubmoduleMap) (field.ResultMap, error) {
	values, err := f.fn()
	if err != nil {
		return nil, err
	}
	eff, err := proptype.EffectiveResults(f.p)
	if err != nil {
		return nil, err
	}
	if len(values) != eff.Len() {
		return nil, modrunerr.Newf(modrunerr.TypeMismatch, "facade_module: %s declares %d result(s), callable returned %d", f.p.Name(), eff.Len(), len(values))
	}
	out := make(field.ResultMap, eff.Len())
	for i := 0; i < eff.Len(); i++ {
		r := eff.FieldAt(i).Clone()
		if err := field.Produce(r, anyfield.NewOwned(values[i])); err != nil {
			return nil, err
		}
		out[eff.NameAt(i)] = r
	}
	return out, nil
}
