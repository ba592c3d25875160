package refinement

import (
	"context"

	"github.com/rendis/pathway/internal/complexity"
	"github.com/rendis/pathway/internal/expressions"
	"github.com/rendis/pathway/pkg/schema"
)

// Guard evaluates the strict-mode acceptance expression. The expression sees
// three maps: candidate and prior (complexity signals) and session
// (id, operation, history_depth).
type Guard struct {
	engine     *expressions.CELEngine
	expression string
}

// NewGuard compiles expression.
func NewGuard(expression string) (*Guard, error) {
	if expression == "" {
		expression = DefaultAcceptanceGuard
	}
	engine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	if err := engine.Compile(expression); err != nil {
		return nil, err
	}
	return &Guard{engine: engine, expression: expression}, nil
}

// Expression returns the guard source.
func (g *Guard) Expression() string {
	return g.expression
}

// Allow reports whether the candidate may replace the prior graph.
func (g *Guard) Allow(ctx context.Context, candidate, prior *complexity.Report, session map[string]any) (bool, error) {
	data := map[string]any{
		"candidate": candidate.Signals(),
		"prior":     prior.Signals(),
		"session":   session,
	}
	ok, err := expressions.EvaluateBool(ctx, g.engine, g.expression, data)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"acceptance guard %q failed", g.expression).WithCause(err)
	}
	return ok, nil
}
