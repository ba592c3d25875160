package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/pkg/schema"
)

func promptScope() map[string]any {
	return map[string]any{
		"pathway": map[string]any{
			"summary":    "Start: Chest pain; 15 nodes",
			"node_count": 15,
		},
		"request": map[string]any{
			"heuristics": []string{"H2", "H5"},
			"advisory":   map[string]any{"H2": "use plain clinical language"},
		},
		"evidence": "1. [PMID1] Troponin timing",
	}
}

func TestRender(t *testing.T) {
	interp := NewInterpolator()

	out, err := interp.Render(
		"Pathway (${{pathway.node_count}} nodes): ${{ pathway.summary }}\nApply ${{request.heuristics}}: ${{request.advisory.H2}}\n${{evidence}}",
		promptScope())
	require.NoError(t, err)
	assert.Equal(t,
		"Pathway (15 nodes): Start: Chest pain; 15 nodes\nApply [\"H2\",\"H5\"]: use plain clinical language\n1. [PMID1] Troponin timing",
		out)
}

func TestRender_NoTokens(t *testing.T) {
	out, err := NewInterpolator().Render("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
	assert.False(t, HasInterpolation(out))
	assert.True(t, HasInterpolation("${{x}}"))
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"unclosed", "x ${{pathway.summary", "unclosed"},
		{"empty", "${{ }}", "empty variable reference"},
		{"nested", "${{ ${{x}} }}", "nested interpolation"},
		{"unknown namespace", "${{history.depth}}", "available: evidence, pathway, request"},
		{"missing field", "${{pathway.nodes}}", `field "nodes" not found`},
		{"scalar traversal", "${{evidence.items}}", "non-object"},
		{"empty segment", "${{request.advisory..H2}}", "empty segment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInterpolator().Render(tt.tmpl, promptScope())
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
