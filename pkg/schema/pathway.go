package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// NodeKind enumerates the kinds of steps in a pathway.
type NodeKind string

const (
	NodeKindStart    NodeKind = "Start"
	NodeKindDecision NodeKind = "Decision"
	NodeKindProcess  NodeKind = "Process"
	NodeKindEnd      NodeKind = "End"
)

// NodeKinds lists every recognized kind in declaration order.
var NodeKinds = []NodeKind{NodeKindStart, NodeKindDecision, NodeKindProcess, NodeKindEnd}

// Valid reports whether k is one of the four recognized kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindStart, NodeKindDecision, NodeKindProcess, NodeKindEnd:
		return true
	}
	return false
}

// noEvidence is the placeholder generators emit for uncited steps.
const noEvidence = "N/A"

// Node is a single step of a pathway.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Label    string   `json:"label"`
	Evidence string   `json:"evidence,omitempty"` // citation id, e.g. a PMID
	Detail   string   `json:"detail,omitempty"`   // trade-off / threshold annotations
	Tags     []string `json:"tags,omitempty"`     // advisory only
	Branches []Branch `json:"branches,omitempty"` // decision nodes only
	Next     string   `json:"next,omitempty"`     // explicit follow-on node id
	Role     string   `json:"role,omitempty"`     // swimlane
}

// Branch is one labelled continuation of a decision node.
type Branch struct {
	Label string   `json:"label"`
	Nodes []string `json:"nodes"`
}

// HasEvidence reports whether the node carries a citation.
// The "N/A" placeholder counts as no citation.
func (n Node) HasEvidence() bool {
	e := strings.TrimSpace(n.Evidence)
	return e != "" && !strings.EqualFold(e, noEvidence)
}

// HasDetail reports whether the node carries a non-blank detail annotation.
func (n Node) HasDetail() bool {
	return strings.TrimSpace(n.Detail) != ""
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.Branches != nil {
		c.Branches = make([]Branch, len(n.Branches))
		for i, b := range n.Branches {
			c.Branches[i] = Branch{Label: b.Label}
			if b.Nodes != nil {
				c.Branches[i].Nodes = append([]string(nil), b.Nodes...)
			}
		}
	}
	return c
}

// Citation is a read-only evidence record supplied by the evidence collaborator.
type Citation struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// Graph is an immutable, ordered collection of pathway nodes.
// Edges are derived from branch grouping and sequence adjacency at construction.
// A Graph performs no validation: malformed node lists are representable so
// they can be inspected before being rejected.
type Graph struct {
	nodes []Node
	index map[string]int // first occurrence of each id
	edges []Edge
	out   map[string][]Edge
}

// NewGraph builds a Graph from a node list. The list is deep-copied.
func NewGraph(nodes []Node) *Graph {
	g := &Graph{
		nodes: make([]Node, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	for i, n := range nodes {
		g.nodes[i] = n.Clone()
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
	g.deriveEdges()
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}

// Nodes returns a deep copy of the ordered node list.
func (g *Graph) Nodes() []Node {
	if g == nil {
		return []Node{}
	}
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Clone()
	}
	return out
}

// At returns the node at position i.
func (g *Graph) At(i int) Node {
	return g.nodes[i]
}

// Node looks up a node by id in O(1).
func (g *Graph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether a node with the given id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Index returns the position of the node with the given id, or -1.
func (g *Graph) Index(id string) int {
	if g == nil {
		return -1
	}
	if i, ok := g.index[id]; ok {
		return i
	}
	return -1
}

// Start returns the first Start node in list order.
func (g *Graph) Start() (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.nodes {
		if n.Kind == NodeKindStart {
			return n, true
		}
	}
	return Node{}, false
}

// Count returns the number of nodes of the given kind.
func (g *Graph) Count(kind NodeKind) int {
	if g == nil {
		return 0
	}
	c := 0
	for _, n := range g.nodes {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

// Clone returns an independent copy of the graph.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	return NewGraph(g.nodes)
}

// ContentHash returns a hex sha256 of the canonical JSON encoding of the node list.
// Two graphs with field-for-field identical node lists share a hash.
func (g *Graph) ContentHash() string {
	data, err := json.Marshal(g.Nodes())
	if err != nil {
		// Node holds only strings and string slices; encoding cannot fail.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MarshalJSON encodes the graph as its node list.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Nodes())
}

// UnmarshalJSON decodes a node list into the graph.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return err
	}
	*g = *NewGraph(nodes)
	return nil
}
