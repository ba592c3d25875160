package refinement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/pathway/internal/artifacts"
	"github.com/rendis/pathway/internal/complexity"
	"github.com/rendis/pathway/internal/diagram"
	"github.com/rendis/pathway/internal/generation"
	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

// qualityEpsilon absorbs float noise when comparing quality scores.
const qualityEpsilon = 1e-9

// Deps are the optional collaborators of an Engine. Zero values select the
// defaults.
type Deps struct {
	Scorer  *complexity.Scorer
	Catalog *heuristics.Catalog
	Sink    EventSink
	Logger  *slog.Logger
}

// Engine runs refinement operations against explicit sessions. It holds no
// per-session state and is safe for concurrent use across sessions.
type Engine struct {
	cfg       Config
	gen       generation.Generator
	builder   *generation.Builder
	decoder   *Decoder
	validator *validation.Validator
	scorer    *complexity.Scorer
	catalog   *heuristics.Catalog
	guard     *Guard
	fsm       *FSM
	sink      EventSink
	logger    *slog.Logger
}

// NewEngine validates cfg and wires the pipeline around gen.
func NewEngine(gen generation.Generator, cfg Config, deps Deps) (*Engine, error) {
	if gen == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "refinement engine requires a generator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}

	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	guard, err := NewGuard(cfg.AcceptanceGuard)
	if err != nil {
		return nil, err
	}

	if deps.Scorer == nil {
		deps.Scorer = complexity.NewDefault()
	}
	if deps.Catalog == nil {
		deps.Catalog = heuristics.Default()
	}

	return &Engine{
		cfg:       cfg,
		gen:       gen,
		builder:   generation.NewBuilder(cfg.Templates),
		decoder:   decoder,
		validator: validation.New(),
		scorer:    deps.Scorer,
		catalog:   deps.Catalog,
		guard:     guard,
		fsm:       NewFSM(deps.Sink),
		sink:      deps.Sink,
		logger:    logging.OrDefault(deps.Logger),
	}, nil
}

// NewSession creates a session bounded by the configured history capacity.
func (e *Engine) NewSession(g *schema.Graph, opts ...SessionOption) *Session {
	opts = append([]SessionOption{WithHistoryCapacity(e.cfg.HistoryCapacity)}, opts...)
	return NewSession(g, opts...)
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Catalog returns the heuristic catalog.
func (e *Engine) Catalog() *heuristics.Catalog { return e.catalog }

// FSM returns the session state machine, for registering hooks.
func (e *Engine) FSM() *FSM { return e.fsm }

// Validate runs the structural validator.
func (e *Engine) Validate(g *schema.Graph) *validation.Report {
	return e.validator.Validate(g)
}

// Score runs the complexity scorer.
func (e *Engine) Score(g *schema.Graph, evidence []schema.Citation) *complexity.Report {
	return e.scorer.Score(g, evidence)
}

// Diagram renders the session's current graph through its artifact cache.
func (e *Engine) Diagram(ctx context.Context, s *Session, title string, f diagram.Format) ([]byte, error) {
	return artifacts.NewRenderer(s.Cache(), e.logger).Diagram(ctx, s.Current(), title, f)
}

// mutation describes one pass through the acceptance pipeline.
type mutation struct {
	op               schema.Operation
	prompt           string
	evidence         []schema.Citation
	authorizeRemoval bool
	countGuard       bool // reject drops beyond MaxDropFraction
	exactCount       bool // reject any count change
	reset            bool // replace and clear history instead of snapshotting
	selected         []string
}

// Initialize generates a pathway from scratch and installs it, clearing the
// session's history. The candidate must pass the schema and structural checks.
func (e *Engine) Initialize(ctx context.Context, s *Session, instruction string, evidence []schema.Citation) (*Outcome, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidSelection, "initial generation requires an instruction")
	}
	prompt, err := e.builder.Initial(instruction, evidence)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, s, mutation{
		op:       schema.OpInitialize,
		prompt:   prompt,
		evidence: evidence,
		reset:    true,
	})
}

// ApplyActionable applies every selected actionable heuristic in one
// generation request. advisory carries reviewer notes keyed by heuristic id;
// removal keywords in it authorize a larger node-count drop.
func (e *Engine) ApplyActionable(ctx context.Context, s *Session, selected []string, advisory map[string]string) (*Outcome, error) {
	ids, err := e.catalog.ValidateSelection(selected)
	if err != nil {
		return nil, err
	}
	hs := make([]heuristics.Heuristic, 0, len(ids))
	for _, id := range ids {
		h, _ := e.catalog.Get(id)
		hs = append(hs, h)
	}

	prompt, err := e.builder.Apply(s.Current(), hs, advisory, nil)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, s, mutation{
		op:               schema.OpApply,
		prompt:           prompt,
		authorizeRemoval: authorizesRemoval(combinedAdvisory(advisory, ids), e.cfg.RemovalKeywords),
		countGuard:       true,
		selected:         ids,
	})
}

// ApplyFindings applies the actionable heuristics rated at least min in the
// session's evaluations, using their observations as advisory text.
func (e *Engine) ApplyFindings(ctx context.Context, s *Session, min heuristics.Severity) (*Outcome, error) {
	evals := s.evaluations(e.catalog)
	ids := evals.ActionableFindings(min)
	return e.ApplyActionable(ctx, s, ids, evals.Advisory(ids))
}

// RegenerateFreeform revises the pathway from a free-text instruction.
// Removal keywords in the instruction authorize a larger node-count drop.
func (e *Engine) RegenerateFreeform(ctx context.Context, s *Session, instruction string, upstream []schema.Citation) (*Outcome, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidSelection, "refinement instruction is empty")
	}
	prompt, err := e.builder.Regenerate(s.Current(), instruction, upstream)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, s, mutation{
		op:               schema.OpRegenerate,
		prompt:           prompt,
		evidence:         upstream,
		authorizeRemoval: authorizesRemoval(instruction, e.cfg.RemovalKeywords),
		countGuard:       true,
	})
}

// Reorganize asks for a regrouped ordering of a large pathway. The candidate
// must keep the node count exactly.
func (e *Engine) Reorganize(ctx context.Context, s *Session) (*Outcome, error) {
	n := s.Current().Len()
	if n <= e.cfg.ReorganizeThreshold {
		return nil, schema.NewErrorf(schema.ErrCodeReorganizeNotNeeded,
			"pathway has %d nodes; reorganize applies above %d", n, e.cfg.ReorganizeThreshold).
			WithDetails(map[string]any{"node_count": n, "threshold": e.cfg.ReorganizeThreshold})
	}
	prompt, err := e.builder.Reorganize(s.Current())
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, s, mutation{
		op:         schema.OpReorganize,
		prompt:     prompt,
		exactCount: true,
	})
}

// Undo restores the most recent snapshot. No external call is made.
func (e *Engine) Undo(ctx context.Context, s *Session) (*schema.Graph, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	restored, prev, ok := s.undo()
	if !ok {
		return nil, schema.NewError(schema.ErrCodeHistoryUnderflow, "nothing to undo")
	}
	ctx = logging.WithIDs(ctx, s.ID, string(schema.OpUndo))
	e.invalidate(ctx, s, prev)
	e.emit(ctx, s, schema.EventUndoApplied, schema.OpUndo, map[string]any{
		"node_count":    restored.Len(),
		"history_depth": s.HistoryDepth(),
		"hash":          restored.ContentHash(),
	})
	logging.LogWith(ctx, e.logger).Info("undo applied", "node_count", restored.Len(), "history_depth", s.HistoryDepth())
	return restored, nil
}

// Evaluate records a heuristic severity rating on the session.
func (e *Engine) Evaluate(s *Session, ev heuristics.Evaluation) error {
	return s.evaluations(e.catalog).Record(ev)
}

// Evaluations returns the session's heuristic ratings, worst first.
func (e *Engine) Evaluations(s *Session) []heuristics.Evaluation {
	return s.evaluations(e.catalog).Summary()
}

// mutate is the shared acceptance pipeline: generate, decode, count guard,
// validate, score, guard, then replace or reject. The live graph changes only
// in the final replace.
func (e *Engine) mutate(ctx context.Context, s *Session, m mutation) (*Outcome, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	ctx = logging.WithIDs(ctx, s.ID, string(m.op))
	log := logging.LogWith(ctx, e.logger)

	if s.State() != StateDraft {
		e.transition(ctx, s, m.op, StateDraft)
	}

	prior := s.Current()
	out := &Outcome{Operation: m.op, Graph: prior}

	start := time.Now()
	s.pending.Store(true)
	res, err := e.gen.Generate(ctx, m.prompt, true)
	s.pending.Store(false)
	log.Debug("generation returned", "duration", time.Since(start), "error", err)
	if err != nil {
		return e.reject(ctx, s, out, asPathwayError(err, schema.ErrCodeGenerationFailed, "generation failed"))
	}

	if res == nil {
		return e.reject(ctx, s, out, schema.NewError(schema.ErrCodeGenerationFailed, "generation returned no result"))
	}
	payload := res.Payload
	if !res.Structured() {
		payload, err = generation.ExtractJSON(res.Text)
		if err != nil {
			return e.reject(ctx, s, out, schema.NewError(schema.ErrCodeSchema, "generation returned no JSON document").WithCause(err))
		}
	}

	cand, err := e.decoder.Decode(ctx, payload)
	if err != nil {
		return e.reject(ctx, s, out, asPathwayError(err, schema.ErrCodeSchema, "decode candidate"))
	}
	out.Candidate = cand.Graph
	out.Applied = cand.Applied
	out.Summary = cand.Summary

	n, c := prior.Len(), cand.Graph.Len()
	if m.exactCount && c != n {
		return e.reject(ctx, s, out, schema.NewErrorf(schema.ErrCodeNodeCountMismatch,
			"reorganized pathway has %d nodes, expected exactly %d", c, n).
			WithDetails(map[string]any{"expected": n, "actual": c}))
	}
	if m.countGuard && dropExceeded(n, c, e.cfg.MaxDropFraction) {
		if !m.authorizeRemoval {
			return e.reject(ctx, s, out, schema.NewErrorf(schema.ErrCodeCountDrop,
				"candidate drops from %d to %d nodes without authorization", n, c).
				WithDetails(map[string]any{
					"prior_count":       n,
					"candidate_count":   c,
					"max_drop_fraction": e.cfg.MaxDropFraction,
				}))
		}
		out.Advisories = append(out.Advisories, AdvisoryRemovalAuthorized)
	}

	out.Validation = e.validator.Validate(cand.Graph)
	if err := out.Validation.ToError(); err != nil {
		return e.reject(ctx, s, out, asPathwayError(err, schema.ErrCodeStructural, "structural validation"))
	}
	e.transition(ctx, s, m.op, StateValidated)

	out.Complexity = e.scorer.ScoreContext(ctx, cand.Graph, m.evidence)
	if !m.reset && n > 0 {
		out.Prior = e.scorer.ScoreContext(ctx, prior, m.evidence)
		if err := e.checkRegression(ctx, s, m, out); err != nil {
			return e.reject(ctx, s, out, asPathwayError(err, schema.ErrCodeComplexityRegress, "acceptance guard"))
		}
	}
	if missing := unapplied(m.selected, cand.Applied); len(cand.Applied) > 0 && len(missing) > 0 {
		out.Advisories = append(out.Advisories, AdvisoryUnappliedHeuristics+": "+strings.Join(missing, ", "))
	}

	var replaced *schema.Graph
	if m.reset {
		replaced = s.reset(cand.Graph)
	} else {
		replaced = s.replace(cand.Graph)
	}
	e.invalidate(ctx, s, replaced)
	e.transition(ctx, s, m.op, StateAccepted)

	out.Accepted = true
	out.Graph = cand.Graph
	s.setLast(out)

	e.emit(ctx, s, schema.EventMutationAccepted, m.op, map[string]any{
		"prior_count":     n,
		"candidate_count": c,
		"quality_score":   out.Complexity.QualityScore,
		"advisories":      out.Advisories,
		"applied":         out.Applied,
		"hash":            cand.Graph.ContentHash(),
	})
	if m.reset {
		e.emit(ctx, s, schema.EventPathwayInitialized, m.op, map[string]any{"node_count": c})
	}
	log.Info("mutation accepted",
		"prior_count", n,
		"candidate_count", c,
		"quality_score", out.Complexity.QualityScore,
		"advisories", out.Advisories,
		"history_depth", s.HistoryDepth(),
	)
	return out, nil
}

// checkRegression compares candidate and prior quality. In strict mode the
// acceptance guard decides; otherwise a drop is recorded as an advisory.
func (e *Engine) checkRegression(ctx context.Context, s *Session, m mutation, out *Outcome) error {
	regressed := out.Complexity.QualityScore+qualityEpsilon < out.Prior.QualityScore

	if !e.cfg.Strict {
		if regressed {
			out.Advisories = append(out.Advisories, AdvisoryComplexityRegression)
		}
		return nil
	}

	ok, err := e.guard.Allow(ctx, out.Complexity, out.Prior, map[string]any{
		"id":            s.ID,
		"operation":     string(m.op),
		"history_depth": s.HistoryDepth(),
	})
	if err != nil {
		return err
	}
	if !ok {
		return schema.NewErrorf(schema.ErrCodeComplexityRegress,
			"candidate rejected by acceptance guard %q", e.guard.Expression()).
			WithDetails(map[string]any{
				"candidate_quality": out.Complexity.QualityScore,
				"prior_quality":     out.Prior.QualityScore,
				"guard":             e.guard.Expression(),
			})
	}
	return nil
}

// reject records a failed attempt. The live graph is untouched.
func (e *Engine) reject(ctx context.Context, s *Session, out *Outcome, perr *schema.PathwayError) (*Outcome, error) {
	out.Accepted = false
	out.Graph = s.Current()
	out.Reason = perr
	e.transition(ctx, s, out.Operation, StateRejected)
	s.setLast(out)

	payload := map[string]any{"code": perr.Code, "message": perr.Message}
	if out.Candidate != nil {
		payload["candidate_count"] = out.Candidate.Len()
	}
	if out.Validation != nil && len(out.Validation.Violations) > 0 {
		payload["violations"] = out.Validation.Violations
	}
	e.emit(ctx, s, schema.EventMutationRejected, out.Operation, payload)

	logging.LogWith(ctx, e.logger).Warn("mutation rejected", "code", perr.Code, "reason", perr.Message)
	return out, perr
}

func (e *Engine) transition(ctx context.Context, s *Session, op schema.Operation, to State) {
	if err := e.fsm.Transition(ctx, s, op, to); err != nil {
		logging.LogWith(ctx, e.logger).Warn("session transition failed", "to", string(to), "error", err)
	}
}

// invalidate drops cached artifacts of a graph that is no longer current.
func (e *Engine) invalidate(ctx context.Context, s *Session, replaced *schema.Graph) {
	if err := artifacts.NewRenderer(s.Cache(), e.logger).Invalidate(ctx, replaced); err != nil {
		logging.LogWith(ctx, e.logger).Warn("artifact invalidation failed", "error", err)
	}
}

func (e *Engine) emit(ctx context.Context, s *Session, typ string, op schema.Operation, payload map[string]any) {
	if e.sink == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logging.LogWith(ctx, e.logger).Warn("encode event payload", "type", typ, "error", err)
		return
	}
	event := &schema.Event{
		SessionID: s.ID,
		Type:      typ,
		Operation: op,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}
	if err := e.sink.AppendEvent(ctx, event); err != nil {
		logging.LogWith(ctx, e.logger).Warn("append event failed", "type", typ, "error", err)
	}
}

// asPathwayError keeps a PathwayError as is and wraps anything else.
func asPathwayError(err error, code, message string) *schema.PathwayError {
	var perr *schema.PathwayError
	if errors.As(err, &perr) {
		return perr
	}
	return schema.NewError(code, message).WithCause(err)
}

// combinedAdvisory joins the advisory texts of the selected ids. Notes on
// heuristics outside the selection never contribute.
func combinedAdvisory(advisory map[string]string, selected []string) string {
	byID := make(map[string]string, len(advisory))
	for id, text := range advisory {
		byID[strings.ToUpper(strings.TrimSpace(id))] = text
	}
	parts := make([]string, 0, len(selected))
	for _, id := range selected {
		if text := strings.TrimSpace(byID[id]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// unapplied lists selected ids the generator did not report as applied.
func unapplied(selected, applied []string) []string {
	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}
	var out []string
	for _, id := range selected {
		if !done[id] {
			out = append(out, id)
		}
	}
	return out
}
