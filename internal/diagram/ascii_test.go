package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/internal/pathwaytest"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

func TestRenderASCIITwoBranch(t *testing.T) {
	model, err := Build(pathwaytest.TwoBranch(), "Vomiting", nil)
	require.NoError(t, err)

	output := RenderASCII(model)

	assert.Contains(t, output, "=== Vomiting ===")

	// Box-drawing characters.
	assert.Contains(t, output, "┌") // ┌
	assert.Contains(t, output, "┘") // ┘
	assert.Contains(t, output, "│") // │

	assert.Contains(t, output, "Is patient unstable?")
	assert.Contains(t, output, "<decision>")
	assert.Contains(t, output, "(end)")

	// Level connectors and branch listing.
	assert.Equal(t, 3, strings.Count(output, "▼"))
	assert.Contains(t, output, "--- branches ---")
	assert.Contains(t, output, "d1 ─[Yes]→ p1")
}

func TestRenderASCIISideBySide(t *testing.T) {
	model, err := Build(pathwaytest.TwoBranch(), "", nil)
	require.NoError(t, err)

	output := RenderASCII(model)
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Resuscitate") {
			assert.Contains(t, line, "Antiemetic and oral rehydration")
			return
		}
	}
	t.Fatal("branch level not rendered on one row")
}

func TestRenderASCIIIssueTags(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "s", Kind: schema.NodeKindStart, Label: "s"},
		{ID: "e1", Kind: schema.NodeKindEnd, Label: "e1", Evidence: "PMID9"},
		{ID: "e2", Kind: schema.NodeKindEnd, Label: "e2"},
	})
	model, err := Build(g, "", validation.Validate(g))
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "[ERR terminal]")
	assert.Contains(t, output, "PMID9")
}
