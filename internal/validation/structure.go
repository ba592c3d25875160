package validation

import (
	"strings"

	"github.com/rendis/pathway/pkg/schema"
)

// checkStructure verifies ids, kinds, the single entry point and that every
// branch or next reference resolves to a node in the graph.
func checkStructure(g *schema.Graph, r *Report) {
	before := len(r.Violations)

	seen := make(map[string]bool, g.Len())
	starts := 0
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)

		if n.ID == "" {
			r.violate(RuleEmptyID, "", "", "node at position %d has an empty id", i)
		} else if seen[n.ID] {
			r.violate(RuleDuplicateID, n.ID, "", "duplicate node id %q", n.ID)
		}
		seen[n.ID] = true

		if !n.Kind.Valid() {
			r.violate(RuleUnknownKind, n.ID, "", "node %q has unknown kind %q", n.ID, n.Kind)
		}
		if n.Kind == schema.NodeKindStart {
			starts++
		}
		if strings.TrimSpace(n.Label) == "" {
			r.warn(RuleEmptyLabel, n.ID, "node %q has an empty label", n.ID)
		}

		checkBranches(g, n, r)

		if n.Next != "" && !g.Has(n.Next) {
			r.violate(RuleDanglingReference, n.ID, n.Next,
				"node %q continues to non-existent node %q", n.ID, n.Next)
		}
	}

	switch {
	case starts == 0:
		r.violate(RuleStartCount, "", "", "graph has no Start node")
	case starts > 1:
		r.violate(RuleStartCount, "", "", "graph has %d Start nodes, expected exactly one", starts)
	default:
		start, _ := g.Start()
		if trunk := g.Trunk(); len(trunk) == 0 || trunk[0] != start.ID {
			r.warn(RuleStartPosition, start.ID, "Start node %q is not the first step of the main sequence", start.ID)
		}
	}

	if len(r.Violations) > before {
		r.StructureOK = false
	}
}

func checkBranches(g *schema.Graph, n schema.Node, r *Report) {
	if n.Kind == schema.NodeKindDecision && len(n.Branches) < 2 {
		r.violate(RuleDecisionBranches, n.ID, "",
			"decision %q has %d branches, expected at least 2", n.ID, len(n.Branches))
	}
	if len(n.Branches) > 0 && n.Kind != schema.NodeKindDecision {
		r.violate(RuleMisplacedBranches, n.ID, "",
			"%s node %q declares branches; only Decision nodes may branch", n.Kind, n.ID)
	}

	for _, b := range n.Branches {
		if len(b.Nodes) == 0 {
			r.violate(RuleEmptyBranch, n.ID, "", "branch %q of %q has no nodes", b.Label, n.ID)
			continue
		}
		for _, id := range b.Nodes {
			if !g.Has(id) {
				r.violate(RuleDanglingReference, n.ID, id,
					"branch %q of %q references non-existent node %q", b.Label, n.ID, id)
			}
		}
	}
}
