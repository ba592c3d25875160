package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBranchNodes is [Start, Decision{x:[px,ex], y:[py,ey]}].
func twoBranchNodes() []Node {
	return []Node{
		{ID: "start", Kind: NodeKindStart, Label: "Patient arrives"},
		{ID: "d1", Kind: NodeKindDecision, Label: "Unstable?", Branches: []Branch{
			{Label: "Yes", Nodes: []string{"px", "ex"}},
			{Label: "No", Nodes: []string{"py", "ey"}},
		}},
		{ID: "px", Kind: NodeKindProcess, Label: "Resuscitate"},
		{ID: "ex", Kind: NodeKindEnd, Label: "Admit ICU"},
		{ID: "py", Kind: NodeKindProcess, Label: "Observe"},
		{ID: "ey", Kind: NodeKindEnd, Label: "Discharge"},
	}
}

func edgeSet(g *Graph) map[[2]string]EdgeKind {
	out := make(map[[2]string]EdgeKind)
	for _, e := range g.Edges() {
		out[[2]string{e.From, e.To}] = e.Kind
	}
	return out
}

func TestGraph_DerivedEdges_TwoBranches(t *testing.T) {
	g := NewGraph(twoBranchNodes())

	assert.Equal(t, []string{"start", "d1"}, g.Trunk())
	assert.Equal(t, map[[2]string]EdgeKind{
		{"start", "d1"}: EdgeSequence,
		{"d1", "px"}:    EdgeBranch,
		{"d1", "py"}:    EdgeBranch,
		{"px", "ex"}:    EdgeSequence,
		{"py", "ey"}:    EdgeSequence,
	}, edgeSet(g))

	succ := g.Successors("d1")
	require.Len(t, succ, 2)
	assert.Equal(t, "Yes", succ[0].Label)
	assert.Equal(t, "No", succ[1].Label)
	assert.Empty(t, g.Successors("ex"))
}

func TestGraph_NextOverridesSequence(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "s", Kind: NodeKindStart},
		{ID: "a", Kind: NodeKindProcess, Next: "c"},
		{ID: "b", Kind: NodeKindProcess},
		{ID: "c", Kind: NodeKindEnd},
	})

	edges := edgeSet(g)
	assert.Equal(t, EdgeNext, edges[[2]string{"a", "c"}])
	_, hasAB := edges[[2]string{"a", "b"}]
	assert.False(t, hasAB)
	assert.Equal(t, EdgeSequence, edges[[2]string{"b", "c"}])
}

func TestGraph_EndKeepsSequentialEdge(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "s", Kind: NodeKindStart},
		{ID: "e", Kind: NodeKindEnd},
		{ID: "after", Kind: NodeKindProcess},
	})
	succ := g.Successors("e")
	require.Len(t, succ, 1)
	assert.Equal(t, "after", succ[0].To)
}

func TestGraph_Lookup(t *testing.T) {
	g := NewGraph(twoBranchNodes())

	n, ok := g.Node("py")
	require.True(t, ok)
	assert.Equal(t, "Observe", n.Label)
	assert.Equal(t, 4, g.Index("py"))
	assert.Equal(t, -1, g.Index("missing"))
	assert.False(t, g.Has("missing"))
	assert.Equal(t, 1, g.Count(NodeKindDecision))
	assert.Equal(t, 2, g.Count(NodeKindEnd))

	start, ok := g.Start()
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)
}

func TestGraph_OrderIsDependencyOrdered(t *testing.T) {
	g := NewGraph(twoBranchNodes())

	var ids []string
	g.Walk(func(n Node) bool {
		ids = append(ids, n.ID)
		return true
	})
	require.Len(t, ids, 6)
	assert.Equal(t, "start", ids[0])
	assert.Equal(t, "d1", ids[1])

	pos := make(map[string]int)
	for i, id := range ids {
		pos[id] = i
	}
	for _, e := range g.Edges() {
		assert.Less(t, pos[e.From], pos[e.To], "edge %s -> %s", e.From, e.To)
	}
}

func TestGraph_OrderTerminatesOnCycle(t *testing.T) {
	g := NewGraph([]Node{
		{ID: "s", Kind: NodeKindStart},
		{ID: "a", Kind: NodeKindProcess},
		{ID: "b", Kind: NodeKindProcess, Next: "a"},
	})
	order := g.Order()
	assert.Len(t, order, 3)
}

func TestGraph_WalkStopsEarly(t *testing.T) {
	g := NewGraph(twoBranchNodes())
	count := 0
	g.Walk(func(Node) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestGraph_NodesIsDefensiveCopy(t *testing.T) {
	src := twoBranchNodes()
	g := NewGraph(src)

	src[1].Branches[0].Nodes[0] = "mutated"
	n, _ := g.Node("d1")
	assert.Equal(t, "px", n.Branches[0].Nodes[0])

	out := g.Nodes()
	out[0].Label = "changed"
	first, _ := g.Node("start")
	assert.Equal(t, "Patient arrives", first.Label)
}

func TestGraph_ContentHash(t *testing.T) {
	a := NewGraph(twoBranchNodes())
	b := NewGraph(twoBranchNodes())
	assert.Equal(t, a.ContentHash(), b.ContentHash())
	assert.Len(t, a.ContentHash(), 64)

	nodes := twoBranchNodes()
	nodes[2].Evidence = "PMID123"
	c := NewGraph(nodes)
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g := NewGraph(twoBranchNodes())
	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"Decision"`)

	var back Graph
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, g.Nodes(), back.Nodes())
	assert.Len(t, back.Edges(), 5)
}

func TestNode_HasEvidence(t *testing.T) {
	assert.False(t, Node{}.HasEvidence())
	assert.False(t, Node{Evidence: "N/A"}.HasEvidence())
	assert.False(t, Node{Evidence: " n/a "}.HasEvidence())
	assert.True(t, Node{Evidence: "PMID25355829"}.HasEvidence())
}

func TestNodeKind_Valid(t *testing.T) {
	for _, k := range NodeKinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, NodeKind("Note").Valid())
}

func TestGraph_NilSafe(t *testing.T) {
	var g *Graph
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Nodes())
	assert.Nil(t, g.Edges())
	_, ok := g.Start()
	assert.False(t, ok)
	assert.Nil(t, g.Trunk())
	assert.Nil(t, g.Sequences())
	assert.Nil(t, g.Successors("s"))
	assert.Empty(t, g.Reachable())
	assert.Nil(t, g.Order())
	assert.NotEmpty(t, g.ContentHash())
}
