package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/pkg/schema"
)

func signals() map[string]any {
	return map[string]any{
		"node_count":            5,
		"decision_count":        1,
		"evidence_coverage":     0.0,
		"stage_coverage":        0.5,
		"benefit_harm_coverage": 0.0,
		"level":                 "minimal",
		"stages_missing":        []any{"re_evaluation", "disposition"},
	}
}

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Literals(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), "42", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	out, err = e.Evaluate(context.Background(), `"moderate"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "moderate", out)
}

func TestExpr_RuleConditions(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	tests := []struct {
		expression string
		want       bool
	}{
		{"evidence_coverage < 0.3", true},
		{"node_count < 12 && level == 'minimal'", true},
		{"decision_count >= 2", false},
		{"benefit_harm_coverage < 0.5 && decision_count > 0", true},
		{"'disposition' in stages_missing", true},
		{"len(stages_missing) == 0", false},
		{"(unresolved_count ?? 0) > 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := EvaluateBool(ctx, e, tt.expression, signals())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	err := e.Compile("node_count <", signals())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))

	err = e.Compile("", signals())
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))
}

func TestExpr_NonBoolResult(t *testing.T) {
	e := NewExprEngine()

	_, err := EvaluateBool(context.Background(), e, "node_count + 1", signals())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestExpr_Caching(t *testing.T) {
	e := NewExprEngine()
	require.NoError(t, e.Compile("node_count > 3", signals()))

	assert.Equal(t, 1, e.programs.len())

	_, err := e.Evaluate(context.Background(), "node_count > 3", signals())
	require.NoError(t, err)

	assert.Equal(t, 1, e.programs.len())
}

func TestExpr_Concurrent(t *testing.T) {
	e := NewExprEngine()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data := signals()
			data["node_count"] = n
			got, err := EvaluateBool(context.Background(), e, "node_count >= 25", data)
			assert.NoError(t, err)
			assert.Equal(t, n >= 25, got)
		}(i)
	}
	wg.Wait()
}
