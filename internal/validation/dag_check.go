package validation

import "github.com/rendis/pathway/pkg/schema"

// dfs colors.
const (
	white = iota // not visited
	grey         // on the recursion stack
	black        // finished
)

// checkDAG performs depth-first cycle detection starting at Start and then
// from every node the first pass did not reach, so cycles in detached
// fragments are reported too. Any edge into a node still on the recursion
// stack is a cycle; the violation cites both ends of that edge.
// Start must be the sole entry point: every node it cannot reach is a
// violation, citing the detached node.
func checkDAG(g *schema.Graph, r *Report) {
	color := make(map[string]int, g.Len())

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		for _, e := range g.Successors(id) {
			if !g.Has(e.To) {
				continue // dangling refs already reported by structure
			}
			switch color[e.To] {
			case grey:
				r.IsDAG = false
				r.violate(RuleCycle, e.From, e.To,
					"edge %s -> %s closes a cycle", e.From, e.To)
			case white:
				visit(e.To)
			}
		}
		color[id] = black
	}

	start, hasStart := g.Start()
	if hasStart {
		visit(start.ID)
	}
	reached := make(map[string]bool, len(color))
	for id := range color {
		reached[id] = true
	}

	for i := 0; i < g.Len(); i++ {
		id := g.At(i).ID
		if color[id] == white {
			visit(id)
		}
	}

	if !hasStart {
		return
	}
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)
		if !reached[n.ID] {
			r.SingleEntry = false
			r.violate(RuleUnreachable, n.ID, start.ID,
				"node %q is unreachable from Start %q", n.ID, start.ID)
		}
	}
}
