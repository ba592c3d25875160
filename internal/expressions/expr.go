package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates the scorer's recommendation rules: boolean
// expressions over the computed signals, such as
// `evidence_coverage < 0.3 && node_count > 5`. Safe for concurrent use.
type ExprEngine struct {
	programs *programs[*vm.Program]
}

// NewExprEngine creates an ExprEngine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newPrograms[*vm.Program]()}
}

func (e *ExprEngine) Name() string {
	return "expr"
}

// Compile checks a rule against a sample signal set so that a bad rule fails
// at scorer construction instead of at the first scoring call.
func (e *ExprEngine) Compile(expression string, signals map[string]any) error {
	_, err := e.program(expression, signals)
	return err
}

// Evaluate runs expression with every signal bound as a top-level variable.
// Unknown names evaluate to nil.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, signals map[string]any) (any, error) {
	prg, err := e.program(expression, signals)
	if err != nil {
		return nil, err
	}
	if signals == nil {
		signals = map[string]any{}
	}
	out, err := vm.Run(prg, signals)
	if err != nil {
		return nil, evaluationFailed(e.Name(), expression, err)
	}
	return out, nil
}

func (e *ExprEngine) program(expression string, signals map[string]any) (*vm.Program, error) {
	if expression == "" {
		return nil, invalidExpression(e.Name(), expression, nil)
	}
	if signals == nil {
		signals = map[string]any{}
	}
	return e.programs.get(expression, func(src string) (*vm.Program, error) {
		prg, err := expr.Compile(src, expr.Env(signals), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, invalidExpression(e.Name(), src, err)
		}
		return prg, nil
	})
}

var _ Engine = (*ExprEngine)(nil)
