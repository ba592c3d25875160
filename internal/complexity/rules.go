package complexity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/pathway/internal/expressions"
)

// DefaultRules returns the built-in recommendation rules, in emission order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "oversimplified",
			When:    "node_count < min_nodes",
			Message: "Only ${{node_count}} nodes: the pathway looks oversimplified; add edge cases, contraindications and alternative presentations",
		},
		{
			ID:      "few_decisions",
			When:    "decision_count < 2",
			Message: "Only ${{decision_count}} decision point(s): add branches for clinically distinct presentations",
		},
		{
			ID:      "low_evidence",
			When:    "evidence_coverage < 0.3",
			Message: "Evidence coverage is ${{evidence_percent}}%: cite supporting literature for key steps",
		},
		{
			ID:      "missing_stages",
			When:    "len(stages_missing) > 0",
			Message: "Missing clinical stages: ${{stages_missing_text}}",
		},
		{
			ID:      "undocumented_tradeoffs",
			When:    "decision_count > 0 && benefit_harm_coverage < 1",
			Message: "Only ${{benefit_harm_percent}}% of decisions document benefit/harm trade-offs and thresholds",
		},
		{
			ID:      "single_disposition",
			When:    "end_count < 2",
			Message: "Single End node: add alternative dispositions (admit, observe, discharge)",
		},
		{
			ID:      "unresolved_citations",
			When:    "unresolved_count > 0",
			Message: "${{unresolved_count}} citation(s) not found in the supplied evidence: ${{unresolved_text}}",
		},
	}
}

// Recommendation is one emitted rule.
type Recommendation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ruleSet evaluates compiled rules in order.
type ruleSet struct {
	rules  []Rule
	expr   *expressions.ExprEngine
	interp *expressions.Interpolator
	logger *slog.Logger
}

func newRuleSet(rules []Rule, logger *slog.Logger) (*ruleSet, error) {
	rs := &ruleSet{
		rules:  rules,
		expr:   expressions.NewExprEngine(),
		interp: expressions.NewInterpolator(),
		logger: logger,
	}

	// Compile against a zero-valued environment so types are fixed up front.
	env := (&Report{StagesMissing: []string{}, UnresolvedCitations: []string{}}).signals(Config{})
	for _, r := range rules {
		if err := rs.expr.Compile(r.When, env); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	return rs, nil
}

// evaluate returns the recommendations whose condition holds. A rule whose
// evaluation fails is logged and skipped.
func (rs *ruleSet) evaluate(ctx context.Context, signals map[string]any) []Recommendation {
	out := []Recommendation{}
	for _, r := range rs.rules {
		ok, err := expressions.EvaluateBool(ctx, rs.expr, r.When, signals)
		if err != nil {
			rs.logger.WarnContext(ctx, "recommendation rule failed",
				slog.String("rule", r.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}

		msg, err := rs.interp.Render(r.Message, signals)
		if err != nil {
			rs.logger.WarnContext(ctx, "recommendation message failed to render",
				slog.String("rule", r.ID),
				slog.String("error", err.Error()))
			msg = r.Message
		}
		out = append(out, Recommendation{Rule: r.ID, Message: msg})
	}
	return out
}
