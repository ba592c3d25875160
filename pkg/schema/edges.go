package schema

import "sort"

// EdgeKind records how an edge was derived.
type EdgeKind string

const (
	EdgeSequence EdgeKind = "sequence" // adjacency within a trunk or branch
	EdgeBranch   EdgeKind = "branch"   // decision node to a branch head
	EdgeNext     EdgeKind = "next"     // explicit follow-on reference
)

// Edge is a derived, directed connection between two node ids.
// To may reference an id that does not exist in the graph.
type Edge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Label string   `json:"label,omitempty"`
	Kind  EdgeKind `json:"kind"`
}

// deriveEdges computes the edge set:
//   - a node with branches links to the head of each branch;
//   - a node with Next links to that id;
//   - otherwise consecutive members of a sequence (the trunk or a branch list) are linked.
//
// End nodes are not exempt; terminal violations must stay observable.
func (g *Graph) deriveEdges() {
	g.out = make(map[string][]Edge, len(g.nodes))
	seen := make(map[[2]string]bool)

	add := func(e Edge) {
		key := [2]string{e.From, e.To}
		if seen[key] {
			return
		}
		seen[key] = true
		g.edges = append(g.edges, e)
		g.out[e.From] = append(g.out[e.From], e)
	}

	for _, n := range g.nodes {
		for _, b := range n.Branches {
			if len(b.Nodes) > 0 {
				add(Edge{From: n.ID, To: b.Nodes[0], Label: b.Label, Kind: EdgeBranch})
			}
		}
		if n.Next != "" {
			add(Edge{From: n.ID, To: n.Next, Kind: EdgeNext})
		}
	}

	for _, seq := range g.Sequences() {
		for i := 0; i+1 < len(seq); i++ {
			from, ok := g.Node(seq[i])
			if ok && (len(from.Branches) > 0 || from.Next != "") {
				continue
			}
			add(Edge{From: seq[i], To: seq[i+1], Kind: EdgeSequence})
		}
	}
}

// Trunk returns, in list order, the ids of nodes that belong to no branch.
func (g *Graph) Trunk() []string {
	if g == nil {
		return nil
	}
	inBranch := make(map[string]bool)
	for _, n := range g.nodes {
		for _, b := range n.Branches {
			for _, id := range b.Nodes {
				inBranch[id] = true
			}
		}
	}
	trunk := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !inBranch[n.ID] {
			trunk = append(trunk, n.ID)
		}
	}
	return trunk
}

// Sequences returns the trunk followed by every branch list in node order.
func (g *Graph) Sequences() [][]string {
	if g == nil {
		return nil
	}
	seqs := [][]string{g.Trunk()}
	for _, n := range g.nodes {
		for _, b := range n.Branches {
			seqs = append(seqs, b.Nodes)
		}
	}
	return seqs
}

// Edges returns all derived edges.
func (g *Graph) Edges() []Edge {
	if g == nil {
		return nil
	}
	return append([]Edge(nil), g.edges...)
}

// Successors returns the outgoing edges of the node with the given id.
func (g *Graph) Successors(id string) []Edge {
	if g == nil {
		return nil
	}
	return g.out[id]
}

// Reachable returns the set of existing node ids reachable from Start, Start included.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool, g.Len())
	start, ok := g.Start()
	if !ok {
		return seen
	}
	stack := []string{start.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range g.out[id] {
			if g.Has(e.To) && !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

// Order returns the nodes reachable from Start in dependency order: every node
// appears after all of its reachable predecessors. Ties are broken by list
// position. Nodes caught in a cycle are appended in list order after the
// acyclic prefix, so the traversal always terminates.
func (g *Graph) Order() []Node {
	reach := g.Reachable()
	if len(reach) == 0 {
		return nil
	}

	inDegree := make(map[string]int, len(reach))
	for id := range reach {
		inDegree[id] = 0
	}
	for id := range reach {
		for _, e := range g.out[id] {
			if reach[e.To] {
				inDegree[e.To]++
			}
		}
	}

	var ready []string
	for id, d := range inDegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	byPosition := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool { return g.Index(ids[i]) < g.Index(ids[j]) })
	}
	byPosition(ready)

	order := make([]Node, 0, len(reach))
	placed := make(map[string]bool, len(reach))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		n, _ := g.Node(id)
		order = append(order, n)
		placed[id] = true
		for _, e := range g.out[id] {
			if !reach[e.To] {
				continue
			}
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				ready = append(ready, e.To)
				byPosition(ready)
			}
		}
	}

	if len(order) < len(reach) {
		for _, n := range g.nodes {
			if reach[n.ID] && !placed[n.ID] {
				order = append(order, n)
				placed[n.ID] = true
			}
		}
	}
	return order
}

// Walk calls fn for each reachable node in dependency order until fn returns false.
func (g *Graph) Walk(fn func(Node) bool) {
	for _, n := range g.Order() {
		if !fn(n) {
			return
		}
	}
}
