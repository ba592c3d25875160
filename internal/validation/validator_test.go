package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/internal/pathwaytest"
	"github.com/rendis/pathway/pkg/schema"
)

func rules(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Rule)
	}
	return out
}

func TestValidate_TwoBranch(t *testing.T) {
	r := Validate(pathwaytest.TwoBranch())

	assert.True(t, r.Valid(), "%v", r.Violations)
	assert.True(t, r.IsDAG)
	assert.True(t, r.TerminalOK)
	assert.True(t, r.NoReconvergence)
	assert.True(t, r.StructureOK)
	assert.Equal(t, 1, r.DecisionCount)
	assert.Equal(t, 6, r.NodeCount)
	assert.Empty(t, r.Violations)
	assert.Empty(t, r.Warnings)
	assert.NoError(t, r.ToError())
}

func TestValidate_ChestPain(t *testing.T) {
	r := Validate(pathwaytest.ChestPain())
	assert.True(t, r.Valid(), "%v", r.Violations)
	assert.Equal(t, 3, r.DecisionCount)
	assert.Equal(t, 15, r.NodeCount)
}

func TestValidate_Linear(t *testing.T) {
	for _, n := range []int{2, 5, 22} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			r := Validate(pathwaytest.Linear(n))
			assert.True(t, r.Valid(), "%v", r.Violations)
			assert.Zero(t, r.DecisionCount)
		})
	}
}

func TestValidate_BranchLinksBack(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "start", Kind: schema.NodeKindStart, Label: "Presentation"},
		{ID: "d1", Kind: schema.NodeKindDecision, Label: "Unstable?", Branches: []schema.Branch{
			{Label: "Yes", Nodes: []string{"p1", "back"}},
			{Label: "No", Nodes: []string{"p2", "e2"}},
		}},
		{ID: "p1", Kind: schema.NodeKindProcess, Label: "Resuscitate"},
		{ID: "back", Kind: schema.NodeKindProcess, Label: "Reassess", Next: "d1"},
		{ID: "p2", Kind: schema.NodeKindProcess, Label: "Rehydrate"},
		{ID: "e2", Kind: schema.NodeKindEnd, Label: "Discharge"},
	})

	r := Validate(g)
	assert.False(t, r.IsDAG)
	assert.False(t, r.Valid())

	cycles := r.ViolationsFor(RuleCycle)
	require.Len(t, cycles, 1)
	assert.Equal(t, "back", cycles[0].NodeID)
	assert.Equal(t, "d1", cycles[0].RelatedID)
	assert.Contains(t, cycles[0].Message, "back")

	err := r.ToError()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStructural))
}

func TestValidate_NextCycle(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "start", Kind: schema.NodeKindStart, Label: "s"},
		{ID: "end", Kind: schema.NodeKindEnd, Label: "e"},
		{ID: "a", Kind: schema.NodeKindProcess, Label: "a", Next: "b"},
		{ID: "b", Kind: schema.NodeKindProcess, Label: "b", Next: "a"},
	})

	r := Validate(g)
	assert.False(t, r.IsDAG)
	assert.Len(t, r.ViolationsFor(RuleCycle), 1)
}

func TestValidate_EndFollowedByStep(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "n0", Kind: schema.NodeKindStart, Label: "Arrive"},
		{ID: "n1", Kind: schema.NodeKindEnd, Label: "Discharge"},
		{ID: "n2", Kind: schema.NodeKindProcess, Label: "Follow-up call"},
		{ID: "n3", Kind: schema.NodeKindEnd, Label: "Done"},
	})

	r := Validate(g)
	assert.True(t, r.IsDAG)
	assert.False(t, r.TerminalOK)

	vs := r.ViolationsFor(RuleTerminal)
	require.Len(t, vs, 1)
	assert.Equal(t, "n1", vs[0].NodeID)
	assert.Equal(t, "n2", vs[0].RelatedID)
}

func TestValidate_EndWithNext(t *testing.T) {
	nodes := pathwaytest.TwoBranch().Nodes()
	nodes[3].Next = "p2" // e1 -> p2
	r := Validate(schema.NewGraph(nodes))

	assert.False(t, r.TerminalOK)
	vs := r.ViolationsFor(RuleTerminal)
	require.Len(t, vs, 1)
	assert.Equal(t, "e1", vs[0].NodeID)
	assert.Equal(t, "p2", vs[0].RelatedID)
}

func TestValidate_Reconvergence(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "start", Kind: schema.NodeKindStart, Label: "Presentation"},
		{ID: "d1", Kind: schema.NodeKindDecision, Label: "Unstable?", Branches: []schema.Branch{
			{Label: "Yes", Nodes: []string{"p1"}},
			{Label: "No", Nodes: []string{"p2", "e2"}},
		}},
		{ID: "p1", Kind: schema.NodeKindProcess, Label: "Resuscitate", Next: "p2"},
		{ID: "p2", Kind: schema.NodeKindProcess, Label: "Rehydrate"},
		{ID: "e2", Kind: schema.NodeKindEnd, Label: "Discharge"},
	})

	r := Validate(g)
	assert.True(t, r.IsDAG)
	assert.True(t, r.TerminalOK)
	assert.False(t, r.NoReconvergence)

	vs := r.ViolationsFor(RuleReconvergence)
	require.Len(t, vs, 2)
	for _, v := range vs {
		assert.Equal(t, "d1", v.NodeID)
	}
	assert.Equal(t, "e2", vs[0].RelatedID)
	assert.Equal(t, "p2", vs[1].RelatedID)
}

func TestValidate_BranchesDisjoint(t *testing.T) {
	// every decision of a valid graph has pairwise disjoint branch reach
	for name, g := range map[string]*schema.Graph{
		"two-branch": pathwaytest.TwoBranch(),
		"chest-pain": pathwaytest.ChestPain(),
	} {
		t.Run(name, func(t *testing.T) {
			for _, n := range g.Nodes() {
				if n.Kind != schema.NodeKindDecision {
					continue
				}
				owner := map[string]string{}
				for _, b := range n.Branches {
					for id := range branchReach(g, n.ID, b) {
						prev, dup := owner[id]
						assert.False(t, dup, "%s reached by %q and %q", id, prev, b.Label)
						owner[id] = b.Label
					}
				}
			}
		})
	}
}

func TestValidate_Structure(t *testing.T) {
	tests := []struct {
		name  string
		nodes []schema.Node
		rule  string
	}{
		{
			name: "no start",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindProcess, Label: "a"},
				{ID: "b", Kind: schema.NodeKindEnd, Label: "b"},
			},
			rule: RuleStartCount,
		},
		{
			name: "two starts",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "b", Kind: schema.NodeKindStart, Label: "b"},
				{ID: "c", Kind: schema.NodeKindEnd, Label: "c"},
			},
			rule: RuleStartCount,
		},
		{
			name: "duplicate id",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "a", Kind: schema.NodeKindEnd, Label: "b"},
			},
			rule: RuleDuplicateID,
		},
		{
			name: "empty id",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "", Kind: schema.NodeKindEnd, Label: "b"},
			},
			rule: RuleEmptyID,
		},
		{
			name: "unknown kind",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "b", Kind: "Loop", Label: "b"},
			},
			rule: RuleUnknownKind,
		},
		{
			name: "single branch decision",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "d", Kind: schema.NodeKindDecision, Label: "d", Branches: []schema.Branch{
					{Label: "Yes", Nodes: []string{"e"}},
				}},
				{ID: "e", Kind: schema.NodeKindEnd, Label: "e"},
			},
			rule: RuleDecisionBranches,
		},
		{
			name: "branches on process",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "p", Kind: schema.NodeKindProcess, Label: "p", Branches: []schema.Branch{
					{Label: "x", Nodes: []string{"e1"}},
					{Label: "y", Nodes: []string{"e2"}},
				}},
				{ID: "e1", Kind: schema.NodeKindEnd, Label: "e1"},
				{ID: "e2", Kind: schema.NodeKindEnd, Label: "e2"},
			},
			rule: RuleMisplacedBranches,
		},
		{
			name: "empty branch",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "d", Kind: schema.NodeKindDecision, Label: "d", Branches: []schema.Branch{
					{Label: "Yes", Nodes: []string{"e"}},
					{Label: "No"},
				}},
				{ID: "e", Kind: schema.NodeKindEnd, Label: "e"},
			},
			rule: RuleEmptyBranch,
		},
		{
			name: "dangling branch reference",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a"},
				{ID: "d", Kind: schema.NodeKindDecision, Label: "d", Branches: []schema.Branch{
					{Label: "Yes", Nodes: []string{"e"}},
					{Label: "No", Nodes: []string{"ghost"}},
				}},
				{ID: "e", Kind: schema.NodeKindEnd, Label: "e"},
			},
			rule: RuleDanglingReference,
		},
		{
			name: "dangling next",
			nodes: []schema.Node{
				{ID: "a", Kind: schema.NodeKindStart, Label: "a", Next: "ghost"},
				{ID: "e", Kind: schema.NodeKindEnd, Label: "e"},
			},
			rule: RuleDanglingReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(schema.NewGraph(tt.nodes))
			assert.False(t, r.Valid())
			assert.False(t, r.StructureOK)
			assert.Contains(t, rules(r.Violations), tt.rule)
		})
	}
}

func TestValidate_Empty(t *testing.T) {
	for _, g := range []*schema.Graph{nil, schema.NewGraph(nil)} {
		r := Validate(g)
		assert.False(t, r.Valid())
		assert.Equal(t, []string{RuleEmptyGraph}, rules(r.Violations))
	}
}

func TestValidate_Warnings(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "a", Kind: schema.NodeKindStart, Label: "", Next: "b"},
		{ID: "b", Kind: schema.NodeKindEnd, Label: "b"},
	})

	r := Validate(g)
	assert.True(t, r.Valid(), "%v", r.Violations)
	assert.Equal(t, []string{RuleEmptyLabel}, rules(r.Warnings))
}

func TestValidate_DetachedFragment(t *testing.T) {
	nodes := pathwaytest.TwoBranch().Nodes()
	nodes = append(nodes,
		schema.Node{ID: "x", Kind: schema.NodeKindProcess, Label: "Recheck glucose", Next: "y"},
		schema.Node{ID: "y", Kind: schema.NodeKindEnd, Label: "Discharge"},
	)

	r := Validate(schema.NewGraph(nodes))
	assert.False(t, r.Valid())
	assert.False(t, r.SingleEntry)
	assert.True(t, r.IsDAG)

	vs := r.ViolationsFor(RuleUnreachable)
	require.Len(t, vs, 2)
	assert.Equal(t, "x", vs[0].NodeID)
	assert.Equal(t, "y", vs[1].NodeID)
	assert.Equal(t, "start", vs[0].RelatedID)

	err := r.ToError()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStructural))
}

func TestValidate_SecondEntryPoint(t *testing.T) {
	g := schema.NewGraph([]schema.Node{
		{ID: "a", Kind: schema.NodeKindStart, Label: "Arrive", Next: "b"},
		{ID: "orphan", Kind: schema.NodeKindProcess, Label: "Walk-in triage", Next: "b"},
		{ID: "b", Kind: schema.NodeKindEnd, Label: "b"},
	})

	r := Validate(g)
	assert.False(t, r.Valid())
	assert.False(t, r.SingleEntry)
	assert.Equal(t, []string{RuleUnreachable}, rules(r.Violations))
	assert.Equal(t, "orphan", r.Violations[0].NodeID)
}

func TestValidate_SingleEntryOnValidGraphs(t *testing.T) {
	for _, g := range []*schema.Graph{pathwaytest.TwoBranch(), pathwaytest.ChestPain(), pathwaytest.Linear(7)} {
		r := Validate(g)
		assert.True(t, r.SingleEntry)
		assert.Empty(t, r.ViolationsFor(RuleUnreachable))
	}
}

func TestViolation_String(t *testing.T) {
	v := Violation{Rule: RuleCycle, NodeID: "n1", Message: "edge closes a cycle"}
	assert.Equal(t, "[cycle] edge closes a cycle (node: n1)", v.String())

	v.NodeID = ""
	assert.Equal(t, "[cycle] edge closes a cycle", v.String())
}
