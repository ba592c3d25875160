package refinement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/pathway/internal/expressions"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

// nodeListQuery selects the node list from a generation payload (a bare array,
// or the updated_nodes / nodes member of an object) and normalizes aliases:
// notes becomes detail, and non-string evidence is stringified.
const nodeListQuery = `
def nodelist:
  if type == "array" then .
  elif type == "object" and (.updated_nodes | type) == "array" then .updated_nodes
  elif type == "object" and (.nodes | type) == "array" then .nodes
  else error("payload carries no node list") end;
nodelist | map(
  if type == "object" then
    (if has("notes") and (.detail == null) then .detail = .notes else . end)
    | del(.notes)
    | (if has("evidence") and .evidence != null and (.evidence | type) != "string"
       then .evidence |= tostring else . end)
  else . end)`

// appliedQuery reads the applied heuristic ids and summary of an apply payload.
const appliedQuery = `
if type == "object" then
  {applied: [(.applied_heuristics // [])[] | tostring], summary: (.applied_summary // "" | tostring)}
else {applied: [], summary: ""} end`

// Candidate is a decoded generation payload.
type Candidate struct {
	Graph   *schema.Graph
	Applied []string // heuristic ids the generator reports as applied
	Summary string
}

// Decoder turns untrusted generation payloads into graphs: node-list
// extraction with gojq, a JSON Schema check, then typed decoding with
// positional id assignment and index-target resolution.
type Decoder struct {
	jq     *expressions.GoJQEngine
	schema *validation.NodeListSchema
}

// NewDecoder compiles the node-list schema.
func NewDecoder() (*Decoder, error) {
	s, err := validation.NewNodeListSchema()
	if err != nil {
		return nil, err
	}
	return &Decoder{jq: expressions.NewGoJQEngine(), schema: s}, nil
}

// Decode validates and decodes payload. Every failure is a SCHEMA_ERROR.
func (d *Decoder) Decode(ctx context.Context, payload json.RawMessage) (*Candidate, error) {
	if len(payload) == 0 {
		return nil, schema.NewError(schema.ErrCodeSchema, "generation returned no payload")
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeSchema, "payload is not valid JSON").WithCause(err)
	}

	results, err := d.jq.Query(ctx, nodeListQuery, doc)
	if err != nil || len(results) != 1 {
		if err == nil {
			err = fmt.Errorf("node list query yielded %d results", len(results))
		}
		return nil, schema.NewError(schema.ErrCodeSchema, "payload carries no node list").WithCause(err)
	}
	list := results[0]

	if err := d.schema.Validate(list).ToError(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(list)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeSchema, "re-encode node list").WithCause(err)
	}
	var wire []wireNode
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, schema.NewError(schema.ErrCodeSchema, "decode node list").WithCause(err)
	}

	c := &Candidate{Graph: schema.NewGraph(buildNodes(wire))}

	if meta, err := d.jq.Query(ctx, appliedQuery, doc); err == nil && len(meta) == 1 {
		if m, ok := meta[0].(map[string]any); ok {
			if applied, ok := m["applied"].([]any); ok {
				for _, a := range applied {
					if s, ok := a.(string); ok {
						c.Applied = append(c.Applied, strings.ToUpper(strings.TrimSpace(s)))
					}
				}
			}
			c.Summary, _ = m["summary"].(string)
		}
	}
	return c, nil
}

type wireBranch struct {
	Label  string   `json:"label"`
	Nodes  []string `json:"nodes"`
	Target *int     `json:"target"`
}

type wireNode struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Label    string       `json:"label"`
	Evidence *string      `json:"evidence"`
	Detail   *string      `json:"detail"`
	Tags     []string     `json:"tags"`
	Branches []wireBranch `json:"branches"`
	Next     string       `json:"next"`
	Target   *int         `json:"target"`
	Role     *string      `json:"role"`
}

// buildNodes converts wire nodes, assigning n<i> ids where absent and
// resolving index targets to ids.
func buildNodes(wire []wireNode) []schema.Node {
	n := len(wire)
	ids := make([]string, n)
	for i, w := range wire {
		ids[i] = strings.TrimSpace(w.ID)
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("n%d", i)
		}
	}

	heads := make(map[int]bool)
	for i, w := range wire {
		if w.Type != string(schema.NodeKindDecision) {
			continue
		}
		for _, b := range w.Branches {
			if b.Nodes == nil && b.Target != nil && *b.Target > i && *b.Target < n {
				heads[*b.Target] = true
			}
		}
	}

	nodes := make([]schema.Node, n)
	for i, w := range wire {
		node := schema.Node{
			ID:    ids[i],
			Kind:  schema.NodeKind(w.Type),
			Label: strings.TrimSpace(w.Label),
			Tags:  w.Tags,
			Next:  strings.TrimSpace(w.Next),
		}
		if w.Evidence != nil {
			node.Evidence = normalizeEvidence(*w.Evidence)
		}
		if w.Detail != nil {
			node.Detail = strings.TrimSpace(*w.Detail)
		}
		if w.Role != nil {
			node.Role = strings.TrimSpace(*w.Role)
		}
		if node.Next == "" && w.Target != nil && *w.Target >= 0 && *w.Target < n {
			node.Next = ids[*w.Target]
		}
		node.Branches = resolveBranches(i, w, wire, ids, heads)
		nodes[i] = node
	}
	return nodes
}

// resolveBranches converts the branches of node i. Explicit node lists are
// kept; an index target expands to the run of nodes from the target up to the
// next branch head, stopping after the first End or Decision. A target at or
// before the decision yields a single-node branch so the back edge stays
// visible to the validator.
func resolveBranches(i int, w wireNode, wire []wireNode, ids []string, heads map[int]bool) []schema.Branch {
	if len(w.Branches) == 0 {
		return nil
	}
	n := len(wire)

	var forward []int
	for _, b := range w.Branches {
		if b.Nodes == nil && b.Target != nil && *b.Target > i && *b.Target < n {
			forward = append(forward, *b.Target)
		}
	}
	sort.Ints(forward)

	out := make([]schema.Branch, 0, len(w.Branches))
	for _, b := range w.Branches {
		br := schema.Branch{Label: strings.TrimSpace(b.Label)}
		switch {
		case b.Nodes != nil:
			br.Nodes = append([]string(nil), b.Nodes...)
		case b.Target == nil || *b.Target < 0 || *b.Target >= n:
			br.Nodes = []string{}
		case *b.Target <= i:
			br.Nodes = []string{ids[*b.Target]}
		default:
			br.Nodes = branchRun(*b.Target, forward, wire, ids, heads)
		}
		out = append(out, br)
	}
	return out
}

func branchRun(start int, forward []int, wire []wireNode, ids []string, heads map[int]bool) []string {
	end := len(wire) - 1
	for _, t := range forward {
		if t > start {
			end = t - 1
			break
		}
	}

	run := []string{ids[start]}
	if stopsRun(wire[start]) {
		return run
	}
	for j := start + 1; j <= end; j++ {
		if heads[j] {
			break
		}
		run = append(run, ids[j])
		if stopsRun(wire[j]) {
			break
		}
	}
	return run
}

func stopsRun(w wireNode) bool {
	return w.Type == string(schema.NodeKindEnd) || w.Type == string(schema.NodeKindDecision)
}

func normalizeEvidence(e string) string {
	e = strings.TrimSpace(e)
	if strings.EqualFold(e, "N/A") {
		return ""
	}
	return e
}
