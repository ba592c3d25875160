// Package diagram renders pathway graphs as Mermaid, Graphviz (DOT, SVG, PNG)
// and plain-text box diagrams.
package diagram

// NodeKind classifies a diagram node by its pathway step kind.
type NodeKind string

const (
	NodeKindStart    NodeKind = "start"
	NodeKindDecision NodeKind = "decision"
	NodeKindProcess  NodeKind = "process"
	NodeKindEnd      NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
	Lanes  []*Lane
}

// Node represents a single pathway step in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Evidence string
	Issue    *IssueOverlay
}

// Lane groups the nodes assigned to one role.
type Lane struct {
	Name    string
	NodeIDs []string
}

// IssueOverlay marks a node implicated by a validation finding.
type IssueOverlay struct {
	Severity string // "error" or "warning"
	Rules    []string
}

// Edge represents a derived connection between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
