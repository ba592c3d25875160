package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/pkg/schema"
)

const qualityGuard = "candidate.quality_score >= prior.quality_score"

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_AcceptanceGuard(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name      string
		candidate float64
		prior     float64
		want      bool
	}{
		{"improved", 0.8, 0.5, true},
		{"equal", 0.5, 0.5, true},
		{"regressed", 0.4, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateBool(ctx, e, qualityGuard, map[string]any{
				"candidate": map[string]any{"quality_score": tt.candidate},
				"prior":     map[string]any{"quality_score": tt.prior},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCEL_CountsAndSession(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	got, err := EvaluateBool(context.Background(), e,
		`candidate.node_count >= prior.node_count && session.operation == "reorganize"`,
		map[string]any{
			"candidate": map[string]any{"node_count": 22},
			"prior":     map[string]any{"node_count": 22},
			"session":   map[string]any{"operation": "reorganize"},
		})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCEL_MissingVariablesDefaultToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	got, err := EvaluateBool(context.Background(), e, `!has(prior.quality_score)`, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCEL_Errors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	err = e.Compile("candidate.quality_score >=")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))

	err = e.Compile("unknown_var > 1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))

	_, err = e.Evaluate(context.Background(), "candidate.quality_score > 0.5", map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestCEL_Concurrent(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			score := float64(n) / 100
			got, err := EvaluateBool(context.Background(), e, qualityGuard, map[string]any{
				"candidate": map[string]any{"quality_score": score},
				"prior":     map[string]any{"quality_score": 0.25},
			})
			assert.NoError(t, err)
			assert.Equal(t, score >= 0.25, got)
		}(i)
	}
	wg.Wait()
}
