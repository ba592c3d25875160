package validation

import (
	"sort"

	"github.com/rendis/pathway/pkg/schema"
)

// checkTerminals asserts that every End node has zero outgoing edges.
// Each offending edge is reported with the follow-on node as RelatedID.
func checkTerminals(g *schema.Graph, r *Report) {
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)
		if n.Kind != schema.NodeKindEnd {
			continue
		}
		for _, e := range g.Successors(n.ID) {
			r.TerminalOK = false
			r.violate(RuleTerminal, n.ID, e.To,
				"End node %q is followed by %q; End nodes must be terminal", n.ID, e.To)
		}
	}
}

// checkDivergence asserts that the branches of each decision reach pairwise
// disjoint node sets. Reachability per branch stops at End nodes.
func checkDivergence(g *schema.Graph, r *Report) {
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)
		if n.Kind != schema.NodeKindDecision || len(n.Branches) < 2 {
			continue
		}

		sets := make([]map[string]bool, len(n.Branches))
		for bi, b := range n.Branches {
			sets[bi] = branchReach(g, n.ID, b)
		}

		for a := 0; a < len(sets); a++ {
			for b := a + 1; b < len(sets); b++ {
				for _, id := range sortedIntersection(sets[a], sets[b]) {
					r.NoReconvergence = false
					r.violate(RuleReconvergence, n.ID, id,
						"branches %q and %q of decision %q reconverge at %q",
						n.Branches[a].Label, n.Branches[b].Label, n.ID, id)
				}
			}
		}
	}
}

// branchReach collects the ids reachable from the branch head without passing
// through the owning decision again and without expanding End nodes.
func branchReach(g *schema.Graph, decisionID string, b schema.Branch) map[string]bool {
	seen := make(map[string]bool)
	if len(b.Nodes) == 0 || !g.Has(b.Nodes[0]) {
		return seen
	}

	stack := []string{b.Nodes[0]}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] || id == decisionID {
			continue
		}
		seen[id] = true

		n, _ := g.Node(id)
		if n.Kind == schema.NodeKindEnd {
			continue
		}
		for _, e := range g.Successors(id) {
			if g.Has(e.To) && !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

func sortedIntersection(a, b map[string]bool) []string {
	var out []string
	for id := range a {
		if b[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
