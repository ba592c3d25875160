package refinement

import (
	"github.com/rendis/pathway/internal/complexity"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

// Outcome reports one mutation attempt. It is returned alongside the error
// on rejection whenever a candidate was decoded, so callers can display the
// candidate and its violations.
type Outcome struct {
	Operation  schema.Operation     `json:"operation"`
	Accepted   bool                 `json:"accepted"`
	Graph      *schema.Graph        `json:"graph"`               // live graph after the attempt
	Candidate  *schema.Graph        `json:"candidate,omitempty"` // nil when nothing decoded
	Validation *validation.Report   `json:"validation,omitempty"`
	Complexity *complexity.Report   `json:"complexity,omitempty"`
	Prior      *complexity.Report   `json:"prior,omitempty"`
	Advisories []string             `json:"advisories,omitempty"`
	Applied    []string             `json:"applied,omitempty"` // heuristic ids reported by the generator
	Summary    string               `json:"summary,omitempty"`
	Reason     *schema.PathwayError `json:"reason,omitempty"`
}

// Advisory codes reported in Outcome.Advisories.
const (
	AdvisoryComplexityRegression = schema.ErrCodeComplexityRegress
	AdvisoryRemovalAuthorized    = "REMOVAL_AUTHORIZED"
	AdvisoryUnappliedHeuristics  = "UNAPPLIED_HEURISTICS"
)
