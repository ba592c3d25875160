// Package complexity scores pathway graphs for completeness and emits
// deterministic improvement recommendations.
package complexity

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/pkg/schema"
)

// Report is the outcome of scoring one graph.
type Report struct {
	NodeCount           int              `json:"node_count"`
	DecisionCount       int              `json:"decision_count"`
	EndCount            int              `json:"end_count"`
	EvidenceCoverage    float64          `json:"evidence_coverage"`
	StageCoverage       float64          `json:"stage_coverage"`
	BenefitHarmCoverage float64          `json:"benefit_harm_coverage"`
	Level               Level            `json:"level"`
	QualityScore        float64          `json:"quality_score"`
	StagesPresent       []string         `json:"stages_present"`
	StagesMissing       []string         `json:"stages_missing"`
	UnresolvedCitations []string         `json:"unresolved_citations,omitempty"`
	Recommendations     []Recommendation `json:"recommendations"`
}

// Messages returns the recommendation texts in order.
func (r *Report) Messages() []string {
	out := make([]string, len(r.Recommendations))
	for i, rec := range r.Recommendations {
		out[i] = rec.Message
	}
	return out
}

// Signals exposes the scalar signals of r for expression evaluation.
func (r *Report) Signals() map[string]any {
	return map[string]any{
		"node_count":            r.NodeCount,
		"decision_count":        r.DecisionCount,
		"end_count":             r.EndCount,
		"evidence_coverage":     r.EvidenceCoverage,
		"stage_coverage":        r.StageCoverage,
		"benefit_harm_coverage": r.BenefitHarmCoverage,
		"level":                 string(r.Level),
		"quality_score":         r.QualityScore,
	}
}

// signals extends Signals with the list and text values rules refer to.
func (r *Report) signals(cfg Config) map[string]any {
	m := r.Signals()
	m["stages_missing"] = toAny(r.StagesMissing)
	m["unresolved_count"] = len(r.UnresolvedCitations)
	m["min_nodes"] = cfg.Levels.Moderate
	m["evidence_percent"] = percent(r.EvidenceCoverage)
	m["benefit_harm_percent"] = percent(r.BenefitHarmCoverage)
	m["stages_missing_text"] = strings.Join(r.StagesMissing, ", ")
	m["unresolved_text"] = strings.Join(r.UnresolvedCitations, ", ")
	return m
}

// Scorer computes coverage metrics, level and quality score. It is stateless
// after construction and safe for concurrent use.
type Scorer struct {
	cfg    Config
	rules  *ruleSet
	logger *slog.Logger
}

// New validates cfg and compiles its rules.
func New(cfg Config, logger *slog.Logger) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	logger = logging.OrDefault(logger)
	rules, err := newRuleSet(cfg.Rules, logger)
	if err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, rules: rules, logger: logger}, nil
}

// NewDefault builds a Scorer from DefaultConfig.
func NewDefault() *Scorer {
	s, err := New(DefaultConfig(), nil)
	if err != nil {
		panic("complexity: default config is invalid: " + err.Error())
	}
	return s
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score computes the complexity report for g. evidence is the citation
// context the graph was generated against; when non-empty, node citations not
// found in it are reported as unresolved.
func (s *Scorer) Score(g *schema.Graph, evidence []schema.Citation) *Report {
	return s.ScoreContext(context.Background(), g, evidence)
}

// ScoreContext is Score with a context for rule evaluation and logging.
func (s *Scorer) ScoreContext(ctx context.Context, g *schema.Graph, evidence []schema.Citation) *Report {
	r := &Report{
		NodeCount:     g.Len(),
		DecisionCount: g.Count(schema.NodeKindDecision),
		EndCount:      g.Count(schema.NodeKindEnd),
	}

	r.EvidenceCoverage = evidenceCoverage(g)
	r.BenefitHarmCoverage = benefitHarmCoverage(g)
	r.StagesPresent, r.StagesMissing = detectStages(g, s.cfg.Stages)
	r.StageCoverage = ratio(len(r.StagesPresent), len(s.cfg.Stages))
	r.Level = s.cfg.LevelFor(r.NodeCount)
	r.UnresolvedCitations = unresolvedCitations(g, evidence)
	r.QualityScore = s.quality(r)
	r.Recommendations = s.rules.evaluate(ctx, r.signals(s.cfg))

	logging.LogWith(ctx, s.logger).DebugContext(ctx, "pathway scored",
		slog.Int("node_count", r.NodeCount),
		slog.String("level", string(r.Level)),
		slog.Float64("quality_score", r.QualityScore),
		slog.Int("recommendations", len(r.Recommendations)))
	return r
}

func (s *Scorer) quality(r *Report) float64 {
	w := s.cfg.Weights
	total := w.sum()
	if total <= 0 {
		return 0
	}
	q := (w.Evidence*r.EvidenceCoverage +
		w.Stage*r.StageCoverage +
		w.BenefitHarm*r.BenefitHarmCoverage +
		w.Level*r.Level.Signal()) / total
	return math.Max(0, math.Min(1, q))
}

func evidenceCoverage(g *schema.Graph) float64 {
	cited := 0
	for i := 0; i < g.Len(); i++ {
		if g.At(i).HasEvidence() {
			cited++
		}
	}
	return ratio(cited, g.Len())
}

// benefitHarmCoverage is 0 for a graph without decisions: no trade-offs are
// documented.
func benefitHarmCoverage(g *schema.Graph) float64 {
	decisions, annotated := 0, 0
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)
		if n.Kind != schema.NodeKindDecision {
			continue
		}
		decisions++
		if n.HasDetail() {
			annotated++
		}
	}
	return ratio(annotated, decisions)
}

// unresolvedCitations lists, in first-seen order, the citation ids referenced
// by nodes but absent from evidence. Evidence fields may hold several ids
// separated by commas or semicolons.
func unresolvedCitations(g *schema.Graph, evidence []schema.Citation) []string {
	if len(evidence) == 0 {
		return []string{}
	}
	known := make(map[string]bool, len(evidence))
	for _, c := range evidence {
		known[strings.ToUpper(strings.TrimSpace(c.ID))] = true
	}

	out := []string{}
	seen := make(map[string]bool)
	for i := 0; i < g.Len(); i++ {
		n := g.At(i)
		if !n.HasEvidence() {
			continue
		}
		for _, id := range CitationIDs(n.Evidence) {
			key := strings.ToUpper(id)
			if known[key] || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, id)
		}
	}
	return out
}

// CitationIDs splits an evidence field into its citation ids.
func CitationIDs(evidence string) []string {
	parts := strings.FieldsFunc(evidence, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && !strings.EqualFold(p, "N/A") {
			out = append(out, p)
		}
	}
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
