package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/pathway/pkg/schema"
)

// Interpolator resolves ${{namespace.path}} references in request templates.
// The namespaces are the top-level keys of the scope passed to Render, e.g.
// pathway, request and evidence for generation prompts.
type Interpolator struct{}

// NewInterpolator creates an Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Render replaces every ${{...}} token in tmpl with the referenced scope value.
// Strings are inserted verbatim; other values are JSON-encoded inline.
// An unknown namespace or missing field is an error that lists what is available.
func (interp *Interpolator) Render(tmpl string, scope map[string]any) (string, error) {
	var result strings.Builder
	result.Grow(len(tmpl))

	i := 0
	for i < len(tmpl) {
		idx := strings.Index(tmpl[i:], "${{")
		if idx == -1 {
			result.WriteString(tmpl[i:])
			break
		}

		result.WriteString(tmpl[i : i+idx])
		start := i + idx + 3

		end := strings.Index(tmpl[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeExpression, "unclosed ${{ expression")
		}
		end += start

		ref := strings.TrimSpace(tmpl[start:end])
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeExpression,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}
		if ref == "" {
			return "", schema.NewError(schema.ErrCodeExpression, "empty variable reference: ${{  }}")
		}

		val, err := interp.resolve(ref, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(marshalInline(val))

		i = end + 2
	}

	return result.String(), nil
}

// resolve resolves a single reference like "pathway.summary".
func (interp *Interpolator) resolve(ref string, scope map[string]any) (any, error) {
	parts := strings.SplitN(ref, ".", 2)
	namespace := parts[0]

	root, ok := scope[namespace]
	if !ok {
		available := mapKeys(scope)
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, ref, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": ref, "available_namespaces": available})
	}
	if len(parts) == 1 {
		return root, nil
	}
	if parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"invalid reference %q: expected %s.<field>", ref, namespace).
			WithDetails(map[string]any{"expression": ref})
	}

	// Direct key lookup first (supports keys with dots).
	if m, ok := root.(map[string]any); ok {
		if val, ok := m[parts[1]]; ok {
			return val, nil
		}
	}
	return traversePath(root, parts[1], ref)
}

// traversePath navigates into nested maps using a dot-delimited path.
func traversePath(root any, path, ref string) (any, error) {
	segments := strings.Split(path, ".")
	current := root

	for i, seg := range segments {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"empty segment in path %q at position %d", ref, i).
				WithDetails(map[string]any{"expression": ref})
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				availableKeys := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeExpression,
					"field %q not found in %q; available: [%s]", seg, ref, strings.Join(availableKeys, ", ")).
					WithDetails(map[string]any{"expression": ref, "available_fields": availableKeys})
			}
			current = val
		default:
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, ref, current).
				WithDetails(map[string]any{"expression": ref})
		}
	}

	return current, nil
}

// marshalInline converts a resolved value into its inline text representation.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasInterpolation reports whether s contains any ${{...}} reference.
func HasInterpolation(s string) bool {
	return strings.Contains(s, "${{")
}
