package field

import (
	"github.com/google/cel-go/cel"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/modrunerr"
)

// CompileCELCheck compiles a CEL boolean expression over a single variable
// "value" into a Check, so a declarative config document (see
// modrunconfig) can describe a bound like "value > 0" without recompiling
// Go code. Grounded on the teacher's direct dependency on
// github.com/google/cel-go.
func CompileCELCheck(expr string) (Check, error) {
	env, err := cel.NewEnv(cel.Variable("value", cel.DynType))
	if err != nil {
		return Check{}, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return Check{}, modrunerr.Newf(modrunerr.TypeMismatch, "compile_cel_check: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return Check{}, err
	}
	pred := func(f anyfield.AnyField) bool {
		v, castErr := anyfield.Cast[any](f)
		if castErr != nil {
			return false
		}
		out, _, evalErr := prg.Eval(map[string]any{"value": v})
		if evalErr != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}
	return Check{Desc: expr, Pred: pred}, nil
}

// AddCELCheck compiles expr and appends it as a named validity check on in.
func AddCELCheck(in *Input, expr string) error {
	c, err := CompileCELCheck(expr)
	if err != nil {
		return err
	}
	return AddCheck(in, c.Desc, c.Pred)
}
