package validation

import (
	"fmt"

	"github.com/rendis/pathway/pkg/schema"
)

// Rule identifiers for violations and warnings.
const (
	RuleEmptyGraph        = "empty_graph"
	RuleUnknownKind       = "unknown_kind"
	RuleEmptyID           = "empty_id"
	RuleDuplicateID       = "duplicate_id"
	RuleStartCount        = "start_count"
	RuleStartPosition     = "start_position"
	RuleDanglingReference = "dangling_reference"
	RuleDecisionBranches  = "decision_branches"
	RuleMisplacedBranches = "misplaced_branches"
	RuleEmptyBranch       = "empty_branch"
	RuleEmptyLabel        = "empty_label"
	RuleCycle             = "cycle"
	RuleUnreachable       = "unreachable"
	RuleTerminal          = "terminal"
	RuleReconvergence     = "reconvergence"
)

// Violation is a single structural finding about a pathway graph.
type Violation struct {
	Rule      string                    `json:"rule"`
	Severity  schema.ValidationSeverity `json:"severity"`
	NodeID    string                    `json:"node_id,omitempty"`
	RelatedID string                    `json:"related_id,omitempty"` // second node involved (cycle target, follow-on, colliding id)
	Message   string                    `json:"message"`
}

func (v Violation) String() string {
	if v.NodeID == "" {
		return fmt.Sprintf("[%s] %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("[%s] %s (node: %s)", v.Rule, v.Message, v.NodeID)
}

// Report is the outcome of validating one graph. It is always returned,
// whether or not the graph is valid.
type Report struct {
	IsDAG           bool        `json:"is_dag"`
	TerminalOK      bool        `json:"terminal_ok"`
	NoReconvergence bool        `json:"no_reconvergence"`
	StructureOK     bool        `json:"structure_ok"`
	SingleEntry     bool        `json:"single_entry"`
	NodeCount       int         `json:"node_count"`
	DecisionCount   int         `json:"decision_count"`
	Violations      []Violation `json:"violations"`
	Warnings        []Violation `json:"warnings,omitempty"`
}

func newReport() *Report {
	return &Report{
		IsDAG:           true,
		TerminalOK:      true,
		NoReconvergence: true,
		StructureOK:     true,
		SingleEntry:     true,
		Violations:      []Violation{},
	}
}

// Valid returns true if there are no violations (warnings are acceptable).
func (r *Report) Valid() bool {
	return len(r.Violations) == 0
}

// ViolationsFor returns the violations raised by the given rule.
func (r *Report) ViolationsFor(rule string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Rule == rule {
			out = append(out, v)
		}
	}
	return out
}

func (r *Report) violate(rule, nodeID, relatedID, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Rule:      rule,
		Severity:  schema.SeverityError,
		NodeID:    nodeID,
		RelatedID: relatedID,
		Message:   fmt.Sprintf(format, args...),
	})
}

func (r *Report) warn(rule, nodeID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Violation{
		Rule:     rule,
		Severity: schema.SeverityWarning,
		NodeID:   nodeID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ToError converts the report to a PathwayError if invalid, nil if valid.
func (r *Report) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Violations[0].Message
	if len(r.Violations) > 1 {
		msg = fmt.Sprintf("graph has %d structural violations", len(r.Violations))
	}

	return schema.NewError(schema.ErrCodeStructural, msg).
		WithNode(r.Violations[0].NodeID).
		WithDetails(map[string]any{
			"is_dag":           r.IsDAG,
			"terminal_ok":      r.TerminalOK,
			"no_reconvergence": r.NoReconvergence,
			"single_entry":     r.SingleEntry,
			"violation_count":  len(r.Violations),
			"violations":       r.Violations,
		})
}
