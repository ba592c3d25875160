package diagram

import (
	"fmt"

	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

// Build constructs a DiagramModel from a pathway graph. Nodes follow the
// graph's dependency order, with unreachable nodes appended in list order.
// When report is non-nil its violations and warnings are overlaid on the
// nodes they cite.
func Build(g *schema.Graph, title string, report *validation.Report) (*DiagramModel, error) {
	if g.Len() == 0 {
		return nil, fmt.Errorf("diagram: empty pathway")
	}
	if title == "" {
		title = "Pathway"
	}

	ordered := make([]schema.Node, 0, g.Len())
	placed := make(map[string]bool, g.Len())
	g.Walk(func(n schema.Node) bool {
		ordered = append(ordered, n)
		placed[n.ID] = true
		return true
	})
	for _, n := range g.Nodes() {
		if !placed[n.ID] {
			ordered = append(ordered, n)
			placed[n.ID] = true
		}
	}

	nodes := make([]*Node, 0, len(ordered))
	nodeIndex := make(map[string]*Node, len(ordered))
	for _, n := range ordered {
		if _, dup := nodeIndex[n.ID]; dup {
			continue
		}
		dn := &Node{
			ID:    n.ID,
			Label: n.Label,
			Kind:  kindOf(n.Kind),
		}
		if n.HasEvidence() {
			dn.Evidence = n.Evidence
		}
		nodes = append(nodes, dn)
		nodeIndex[n.ID] = dn
	}

	if report != nil {
		overlayIssues(nodeIndex, report)
	}

	var edges []Edge
	for _, e := range g.Edges() {
		if _, ok := nodeIndex[e.To]; !ok {
			continue // dangling reference
		}
		edges = append(edges, Edge{From: e.From, To: e.To, Label: e.Label})
	}

	return &DiagramModel{
		Title:  title,
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(nodes, edges),
		Lanes:  buildLanes(ordered),
	}, nil
}

// kindOf converts a schema.NodeKind to a NodeKind.
func kindOf(k schema.NodeKind) NodeKind {
	switch k {
	case schema.NodeKindStart:
		return NodeKindStart
	case schema.NodeKindDecision:
		return NodeKindDecision
	case schema.NodeKindEnd:
		return NodeKindEnd
	default:
		return NodeKindProcess
	}
}

// overlayIssues attaches report findings to the nodes they cite.
// Errors take precedence over warnings.
func overlayIssues(index map[string]*Node, r *validation.Report) {
	mark := func(v validation.Violation, severity string) {
		n, ok := index[v.NodeID]
		if !ok {
			return
		}
		if n.Issue == nil {
			n.Issue = &IssueOverlay{Severity: severity}
		} else if severity == "error" {
			n.Issue.Severity = severity
		}
		n.Issue.Rules = append(n.Issue.Rules, v.Rule)
	}
	for _, v := range r.Violations {
		mark(v, "error")
	}
	for _, v := range r.Warnings {
		mark(v, "warning")
	}
}

// buildLevels assigns each node the length of the longest path reaching it.
// Edges that point backwards in node order (cycles) are ignored.
func buildLevels(nodes []*Node, edges []Edge) [][]string {
	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n.ID] = i
	}
	depth := make(map[string]int, len(nodes))
	out := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if pos[e.To] > pos[e.From] {
			out[e.From] = append(out[e.From], e.To)
		}
	}

	maxDepth := 0
	for _, n := range nodes {
		for _, to := range out[n.ID] {
			if d := depth[n.ID] + 1; d > depth[to] {
				depth[to] = d
				if d > maxDepth {
					maxDepth = d
				}
			}
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, n := range nodes {
		d := depth[n.ID]
		levels[d] = append(levels[d], n.ID)
	}
	return levels
}

// buildLanes groups nodes by role, in first-seen order. Graphs without roles
// have no lanes.
func buildLanes(ordered []schema.Node) []*Lane {
	var lanes []*Lane
	byName := make(map[string]*Lane)
	for _, n := range ordered {
		if n.Role == "" {
			continue
		}
		l, ok := byName[n.Role]
		if !ok {
			l = &Lane{Name: n.Role}
			byName[n.Role] = l
			lanes = append(lanes, l)
		}
		l.NodeIDs = append(l.NodeIDs, n.ID)
	}
	return lanes
}
