package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/internal/pathwaytest"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

func TestRenderImageTwoBranch(t *testing.T) {
	model, err := Build(pathwaytest.TwoBranch(), "", nil)
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// PNG magic bytes: 0x89 P N G.
	assert.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImageWithLanesAndIssues(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "s", Kind: schema.NodeKindStart, Label: "Triage", Role: "Nurse"},
		{ID: "e1", Kind: schema.NodeKindEnd, Label: "Admit", Role: "Physician"},
		{ID: "e2", Kind: schema.NodeKindEnd, Label: ""},
	})
	model, err := Build(g, "", validation.Validate(g))
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, byte(0x89), png[0])
}

func TestRenderDOT(t *testing.T) {
	model, err := Build(pathwaytest.TwoBranch(), "", nil)
	require.NoError(t, err)

	dot, err := RenderDOT(context.Background(), model)
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, "d1")
	assert.Contains(t, dot, "diamond")
}

func TestRenderSVG(t *testing.T) {
	model, err := Build(pathwaytest.ChestPain(), "Chest pain", nil)
	require.NoError(t, err)

	svg, err := RenderSVG(context.Background(), model)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
}
