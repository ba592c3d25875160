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

func TestRenderMermaidTwoBranch(t *testing.T) {
	model, err := Build(pathwaytest.TwoBranch(), "Vomiting", nil)
	require.NoError(t, err)

	output := RenderMermaid(model)

	assert.Contains(t, output, "graph TD")
	assert.Contains(t, output, "%% Vomiting")

	// Shapes.
	assert.Contains(t, output, `start(["Patient presents to ED with vomiting"])`)
	assert.Contains(t, output, `d1{"Is patient unstable?"}`)
	assert.Contains(t, output, `p1["Resuscitate"]`)
	assert.Contains(t, output, `e1(("Admit to ICU"))`)

	// Labelled branch edges.
	assert.Contains(t, output, "d1 -->|Yes| p1")
	assert.Contains(t, output, "d1 -->|No| p2")
	assert.Contains(t, output, "p1 --> e1")

	assert.Contains(t, output, "class d1 decision")
	assert.Contains(t, output, "class e2 terminal")
	assert.NotContains(t, output, "subgraph")
}

func TestRenderMermaidLanes(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "s-1", Kind: schema.NodeKindStart, Label: "Triage", Role: "Triage nurse"},
		{ID: "e", Kind: schema.NodeKindEnd, Label: `Say "done"`},
	})
	model, err := Build(g, "", nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, `subgraph lane_Triage_nurse["Triage nurse"]`)
	assert.Contains(t, output, `s_1(["Triage"])`)
	assert.Contains(t, output, `e(("Say 'done'"))`)
	assert.Contains(t, output, "s_1 --> e")
}

func TestRenderMermaidViolations(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "s", Kind: schema.NodeKindStart, Label: "s"},
		{ID: "e1", Kind: schema.NodeKindEnd, Label: "e1"},
		{ID: "e2", Kind: schema.NodeKindEnd, Label: "e2"},
	})
	model, err := Build(g, "", validation.Validate(g))
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "class e1 violation")
}

func TestRenderTextFormats(t *testing.T) {
	model, err := Build(pathwaytest.TwoBranch(), "", nil)
	require.NoError(t, err)

	out, err := Render(context.Background(), model, FormatMermaid)
	require.NoError(t, err)
	assert.Equal(t, RenderMermaid(model), string(out))

	out, err = Render(context.Background(), model, FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, RenderASCII(model), string(out))

	_, err = Render(context.Background(), model, Format("gif"))
	assert.Error(t, err)
}
