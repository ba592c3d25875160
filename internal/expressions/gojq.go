package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// GoJQEngine implements the Engine interface using GoJQ. It reshapes untyped
// generation payloads: pulling the node list out of whatever envelope the
// generator wrapped it in and normalizing legacy field spellings.
// Safe for concurrent use.
type GoJQEngine struct {
	programs *programs[*gojq.Code]
}

// NewGoJQEngine creates a GoJQEngine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newPrograms[*gojq.Code]()}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate runs a jq expression with data as the input object.
//
// jq expressions can produce multiple outputs. When there is exactly one output,
// it is returned directly. When there are multiple outputs, they are collected
// into a slice and returned as []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	var input any = data
	if data == nil {
		input = map[string]any{}
	}
	results, err := e.Query(ctx, expression, input)
	if err != nil {
		return nil, err
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Query runs a jq expression against an arbitrary JSON value (object, array or
// scalar, as produced by encoding/json) and returns every output.
func (e *GoJQEngine) Query(ctx context.Context, expression string, input any) ([]any, error) {
	code, err := e.code(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalizeForJQ(input))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, evaluationFailed(e.Name(), expression, err)
		}
		results = append(results, val)
	}

	return results, nil
}

func (e *GoJQEngine) code(expression string) (*gojq.Code, error) {
	if expression == "" {
		return nil, invalidExpression(e.Name(), expression, nil)
	}
	return e.programs.get(expression, func(src string) (*gojq.Code, error) {
		query, err := gojq.Parse(src)
		if err != nil {
			return nil, invalidExpression(e.Name(), src, err)
		}
		// No environment: $ENV and env stay empty.
		code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return nil, invalidExpression(e.Name(), src, err)
		}
		return code, nil
	})
}

// normalizeForJQ converts Go native types to jq-compatible types.
// jq uses float64 for all numbers and only understands map[string]any / []any
// containers.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
