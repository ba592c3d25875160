package generation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/pathway/internal/expressions"
	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/pkg/schema"
)

const (
	// MaxEvidenceItems bounds the citations included in a request.
	MaxEvidenceItems = 20
	// MaxEvidenceSummary bounds each citation summary, in characters.
	MaxEvidenceSummary = 200

	noEvidenceText = "No specific evidence provided."
	noPathwayText  = "No existing pathway."
)

// nodeFormat describes the node-list wire shape every template asks for.
const nodeFormat = `Each node is a JSON object:
  {"id": "<unique id>", "type": "Start|Decision|Process|End", "label": "<step>",
   "evidence": "<citation id or N/A>", "detail": "<benefit / harm / threshold notes>",
   "branches": [{"label": "<condition>", "nodes": ["<id>", ...]}], "next": "<id>"}
Rules: exactly one Start node first; every Decision has at least two branches;
branch node lists never reconverge; End nodes are terminal; no cycles.`

// Templates are the request templates. ${{...}} references resolve against the
// namespaces pathway (summary, nodes, node_count), request (heuristics,
// instruction), evidence and format.
type Templates struct {
	Initial    string `yaml:"initial" json:"initial"`
	Apply      string `yaml:"apply" json:"apply"`
	Regenerate string `yaml:"regenerate" json:"regenerate"`
	Reorganize string `yaml:"reorganize" json:"reorganize"`
}

// DefaultTemplates returns the built-in request templates.
func DefaultTemplates() Templates {
	return Templates{
		Initial: `Build an evidence-based clinical decision pathway.

REQUEST:
${{request.instruction}}

AVAILABLE EVIDENCE:
${{evidence}}

Cover initial evaluation, diagnosis and treatment, re-evaluation and disposition.
Document benefit, harm and decision thresholds on every Decision node.

${{format}}
OUTPUT: a JSON array of nodes.`,

		Apply: `You are improving a clinical decision pathway against usability heuristics.

CURRENT PATHWAY (${{pathway.summary}}):
${{pathway.nodes}}

APPLY ALL OF THE FOLLOWING HEURISTICS IN ONE REVISION:
${{request.heuristics}}

AVAILABLE EVIDENCE:
${{evidence}}

GUIDELINES:
- PRESERVE decision science integrity (keep branching, never collapse to linear)
- PRESERVE clinical complexity; do not remove nodes unless the advisory text asks for it
- MAINTAIN DAG structure and terminal End nodes

${{format}}
OUTPUT: {"updated_nodes": [...], "applied_heuristics": ["H2", ...], "applied_summary": "<summary>"}`,

		Regenerate: `You are refining an existing clinical decision pathway.

EXISTING PATHWAY (${{pathway.summary}}):
${{pathway.nodes}}

USER'S REFINEMENT REQUEST:
${{request.instruction}}

AVAILABLE EVIDENCE:
${{evidence}}

REFINEMENT GUIDELINES:
- PRESERVE decision science integrity (maintain branching, don't collapse to linear)
- PRESERVE clinical complexity (don't oversimplify)
- ENHANCE specificity (validated scores, specific doses, exact thresholds)
- MAINTAIN DAG structure (no cycles, forward progression only)
- ENSURE all paths terminate in End nodes

${{format}}
OUTPUT: the complete revised JSON array of nodes.`,

		Reorganize: `Reorganize the following ${{pathway.node_count}}-node clinical decision pathway so related
steps are grouped and ordered for readability.

PATHWAY (${{pathway.summary}}):
${{pathway.nodes}}

CONSTRAINTS:
- Return EXACTLY ${{pathway.node_count}} nodes: reorder and regroup, never add or remove
- Keep every label, citation and detail
- Keep decision branches divergent and End nodes terminal

${{format}}
OUTPUT: the reorganized JSON array of nodes.`,
	}
}

// Builder renders generation requests from templates.
type Builder struct {
	templates Templates
	interp    *expressions.Interpolator
}

// NewBuilder creates a Builder. Empty templates fall back to the defaults.
func NewBuilder(t Templates) *Builder {
	d := DefaultTemplates()
	if t.Initial == "" {
		t.Initial = d.Initial
	}
	if t.Apply == "" {
		t.Apply = d.Apply
	}
	if t.Regenerate == "" {
		t.Regenerate = d.Regenerate
	}
	if t.Reorganize == "" {
		t.Reorganize = d.Reorganize
	}
	return &Builder{templates: t, interp: expressions.NewInterpolator()}
}

// Initial renders the request for a wholesale initial generation.
func (b *Builder) Initial(instruction string, evidence []schema.Citation) (string, error) {
	return b.render(b.templates.Initial, nil, map[string]any{"instruction": instruction}, evidence)
}

// Apply renders one combined request for every selected heuristic.
func (b *Builder) Apply(g *schema.Graph, selected []heuristics.Heuristic, advisory map[string]string, evidence []schema.Citation) (string, error) {
	return b.render(b.templates.Apply, g, map[string]any{
		"heuristics": HeuristicsText(selected, advisory),
	}, evidence)
}

// Regenerate renders a free-text refinement request.
func (b *Builder) Regenerate(g *schema.Graph, instruction string, evidence []schema.Citation) (string, error) {
	return b.render(b.templates.Regenerate, g, map[string]any{"instruction": instruction}, evidence)
}

// Reorganize renders a reorder-only request.
func (b *Builder) Reorganize(g *schema.Graph) (string, error) {
	return b.render(b.templates.Reorganize, g, map[string]any{}, nil)
}

func (b *Builder) render(tmpl string, g *schema.Graph, request map[string]any, evidence []schema.Citation) (string, error) {
	nodes, err := json.MarshalIndent(g.Nodes(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode pathway: %w", err)
	}

	scope := map[string]any{
		"pathway": map[string]any{
			"summary":    PathwaySummary(g),
			"nodes":      string(nodes),
			"node_count": g.Len(),
		},
		"request":  request,
		"evidence": EvidenceContext(evidence),
		"format":   nodeFormat,
	}
	return b.interp.Render(tmpl, scope)
}

// EvidenceContext formats at most MaxEvidenceItems citations, one per line,
// with summaries cut to MaxEvidenceSummary characters.
func EvidenceContext(citations []schema.Citation) string {
	if len(citations) == 0 {
		return noEvidenceText
	}
	if len(citations) > MaxEvidenceItems {
		citations = citations[:MaxEvidenceItems]
	}

	lines := make([]string, 0, len(citations))
	for _, c := range citations {
		id := c.ID
		if id == "" {
			id = "N/A"
		}
		title := c.Title
		if title == "" {
			title = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s | Summary: %s", id, title, truncate(c.Summary, MaxEvidenceSummary)))
	}
	return strings.Join(lines, "\n")
}

// PathwaySummary describes g in one line: size, kind histogram, first label
// and up to three End labels.
func PathwaySummary(g *schema.Graph) string {
	if g.Len() == 0 {
		return noPathwayText
	}

	counts := make(map[schema.NodeKind]int)
	var order []schema.NodeKind
	var ends []string
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)
		if counts[n.Kind] == 0 {
			order = append(order, n.Kind)
		}
		counts[n.Kind]++
		if n.Kind == schema.NodeKindEnd && len(ends) < 3 {
			ends = append(ends, truncate(n.Label, 30))
		}
	}

	parts := make([]string, len(order))
	for i, k := range order {
		parts[i] = fmt.Sprintf("%d %s", counts[k], k)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pathway with %d nodes (%s). ", g.Len(), strings.Join(parts, ", "))
	fmt.Fprintf(&sb, "Starts with: '%s'.", truncate(g.At(0).Label, 50))
	if len(ends) > 0 {
		fmt.Fprintf(&sb, " End points: %s.", strings.Join(ends, ", "))
	}
	return sb.String()
}

// HeuristicsText lists the selected heuristics with their advisory text.
// Advisory entries for heuristics outside the selection are appended under
// their id so no reviewer note is lost.
func HeuristicsText(selected []heuristics.Heuristic, advisory map[string]string) string {
	var sb strings.Builder
	used := make(map[string]bool, len(selected))
	for _, h := range selected {
		used[h.ID] = true
		fmt.Fprintf(&sb, "- %s %s: %s\n", h.ID, h.Name, h.Description)
		if a := strings.TrimSpace(advisory[h.ID]); a != "" {
			fmt.Fprintf(&sb, "  Advisory: %s\n", a)
		}
	}

	var extra []string
	for id := range advisory {
		if !used[id] && strings.TrimSpace(advisory[id]) != "" {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		fmt.Fprintf(&sb, "- %s advisory: %s\n", id, strings.TrimSpace(advisory[id]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
