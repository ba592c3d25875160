package expressions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/pkg/schema"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_QueryEnvelope(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	payload := decode(t, `{
		"updated_nodes": [{"type": "Start", "label": "a"}, {"type": "End", "label": "b"}],
		"applied_heuristics": ["H2"],
		"applied_summary": "clarified wording"
	}`)

	out, err := e.Query(ctx, ".updated_nodes | length", payload)
	require.NoError(t, err)
	assert.Equal(t, []any{2}, out)

	out, err = e.Query(ctx, ".applied_heuristics[]", payload)
	require.NoError(t, err)
	assert.Equal(t, []any{"H2"}, out)
}

func TestGoJQ_QueryArrayInput(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Query(context.Background(), `map(.label)`, decode(t, `[{"label": "a"}, {"label": "b"}]`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []any{"a", "b"}, out[0])
}

func TestGoJQ_QueryNormalizesGoValues(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Query(context.Background(), `.[0].target + 1`, []map[string]any{{"target": 3}})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(4)}, out)
}

func TestGoJQ_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, ".missing", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = e.Evaluate(ctx, ".a", map[string]any{"a": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", out)

	out, err = e.Evaluate(ctx, ".a[]", map[string]any{"a": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, out)

	out, err = e.Evaluate(ctx, "empty", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	_, err := e.Query(ctx, "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))

	_, err = e.Query(ctx, ".[", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidExpression))

	_, err = e.Query(ctx, `error("no nodes")`, map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
	assert.Contains(t, err.Error(), "no nodes")
}

func TestGoJQ_SandboxNoEnv(t *testing.T) {
	e := NewGoJQEngine()
	t.Setenv("PATHWAY_SECRET", "s3cr3t")

	out, err := e.Query(context.Background(), `$ENV.PATHWAY_SECRET`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, out)
}

func TestGoJQ_Concurrent(t *testing.T) {
	e := NewGoJQEngine()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), ".n * 2", map[string]any{"n": n})
			assert.NoError(t, err)
			assert.Equal(t, float64(n*2), out)
		}(i)
	}
	wg.Wait()
}

func TestNormalizeForJQ(t *testing.T) {
	assert.Nil(t, normalizeForJQ(nil))
	assert.Equal(t, float64(3), normalizeForJQ(int64(3)))
	assert.Equal(t, []any{"a"}, normalizeForJQ([]string{"a"}))
	assert.Equal(t, map[string]any{"x": float64(1)}, normalizeForJQ(map[string]any{"x": 1}))
}
