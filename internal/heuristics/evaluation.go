package heuristics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rendis/pathway/pkg/schema"
)

// Severity rates a usability problem on Nielsen's 0..4 scale.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityCosmetic
	SeverityMinor
	SeverityMajor
	SeverityCatastrophe
)

var severityNames = [...]string{"None", "Cosmetic", "Minor", "Major", "Catastrophe"}

// Valid reports whether s is within 0..4.
func (s Severity) Valid() bool {
	return s >= SeverityNone && s <= SeverityCatastrophe
}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// Evaluation is a reviewer's finding for one heuristic.
type Evaluation struct {
	HeuristicID string   `json:"heuristic_id"`
	Severity    Severity `json:"severity"`
	Observation string   `json:"observation,omitempty"`
}

// Evaluations records at most one finding per heuristic of a catalog.
type Evaluations struct {
	catalog *Catalog

	mu   sync.RWMutex
	byID map[string]Evaluation
}

// NewEvaluations creates an empty evaluation sheet for c.
func NewEvaluations(c *Catalog) *Evaluations {
	return &Evaluations{catalog: c, byID: make(map[string]Evaluation)}
}

// Record stores ev, replacing any earlier finding for the same heuristic.
func (e *Evaluations) Record(ev Evaluation) error {
	if _, ok := e.catalog.Get(ev.HeuristicID); !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "unknown heuristic %q", ev.HeuristicID)
	}
	if !ev.Severity.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"severity %d out of range 0..4", int(ev.Severity))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[ev.HeuristicID] = ev
	return nil
}

// Get returns the finding recorded for id.
func (e *Evaluations) Get(id string) (Evaluation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ev, ok := e.byID[id]
	return ev, ok
}

// Len returns the number of recorded findings.
func (e *Evaluations) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byID)
}

// Summary returns all findings, most severe first, ties in catalog order.
func (e *Evaluations) Summary() []Evaluation {
	e.mu.RLock()
	out := make([]Evaluation, 0, len(e.byID))
	for _, ev := range e.byID {
		out = append(out, ev)
	}
	e.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return e.catalog.index[out[i].HeuristicID] < e.catalog.index[out[j].HeuristicID]
	})
	return out
}

// ActionableFindings returns, in catalog order, the actionable heuristics
// rated at least min. The result is a ready-made apply selection.
func (e *Evaluations) ActionableFindings(min Severity) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []string
	for _, id := range e.catalog.actionable {
		if ev, ok := e.byID[id]; ok && ev.Severity >= min {
			out = append(out, id)
		}
	}
	return out
}

// Advisory returns the recorded observations of the given heuristics keyed by
// id, skipping empty observations.
func (e *Evaluations) Advisory(ids []string) map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if ev, ok := e.byID[id]; ok && ev.Observation != "" {
			out[id] = ev.Observation
		}
	}
	return out
}
