package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/pathway/internal/diagram"
	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/internal/refinement"
	"github.com/rendis/pathway/internal/store"
	"github.com/rendis/pathway/pkg/schema"
)

// handleOpen loads a session from the store, or starts one from a node list.
func (s *PathwayServer) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	title := req.GetString("title", "")

	nodes, hasNodes, err := decodeArg[[]schema.Node](req, "nodes")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid nodes: %v", err)), nil
	}

	var sess *refinement.Session
	switch {
	case hasNodes:
		opts := s.sessionOptions()
		if sessionID != "" {
			opts = append(opts, refinement.WithSessionID(sessionID))
		}
		sess = s.engine.NewSession(schema.NewGraph(nodes), opts...)
		s.sessions.Put(sess, title)
		s.persist(ctx, sess)
	case sessionID != "":
		sess, err = s.session(ctx, sessionID)
		if err != nil {
			return toolError(err), nil
		}
		if title != "" {
			s.sessions.Put(sess, title)
		}
	default:
		sess = s.engine.NewSession(nil, s.sessionOptions()...)
		s.sessions.Put(sess, title)
		s.persist(ctx, sess)
	}

	s.captureSession(ctx, sess.ID)
	g := sess.Current()
	return marshalResult(map[string]any{
		"session_id":    sess.ID,
		"title":         s.sessions.Title(sess.ID),
		"state":         sess.State(),
		"node_count":    g.Len(),
		"history_depth": sess.HistoryDepth(),
		"validation":    s.engine.Validate(g),
	})
}

// handleInitialize generates a fresh pathway for a session.
func (s *PathwayServer) handleInitialize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}
	instruction, err := req.RequireString("instruction")
	if err != nil {
		return mcp.NewToolResultError("instruction is required"), nil
	}
	evidence, _, err := decodeArg[[]schema.Citation](req, "evidence")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid evidence: %v", err)), nil
	}

	out, mutErr := s.engine.Initialize(ctx, sess, instruction, evidence)
	return s.mutationResult(ctx, sess, out, mutErr)
}

// handleValidate reports structural violations of a node list or session graph.
func (s *PathwayServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, _, res := s.resolveGraph(ctx, req)
	if res != nil {
		return res, nil
	}
	return marshalResult(s.engine.Validate(g))
}

// handleScore reports the complexity metrics of a node list or session graph.
func (s *PathwayServer) handleScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, _, res := s.resolveGraph(ctx, req)
	if res != nil {
		return res, nil
	}
	evidence, _, err := decodeArg[[]schema.Citation](req, "evidence")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid evidence: %v", err)), nil
	}
	return marshalResult(s.engine.Score(g, evidence))
}

// handleCatalog lists the heuristic catalog.
func (s *PathwayServer) handleCatalog(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := s.engine.Catalog()
	return marshalResult(map[string]any{
		"heuristics":        c.All(),
		"actionable":        c.Actionable(),
		"presentation_only": c.PresentationOnly(),
	})
}

// handleApply applies an explicit heuristic selection, or the recorded
// findings when from_findings is set. An empty selection is passed through
// so the engine rejects it.
func (s *PathwayServer) handleApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}

	selected := req.GetStringSlice("heuristics", nil)
	if req.GetBool("from_findings", false) {
		if len(selected) > 0 {
			return mcp.NewToolResultError("heuristics and from_findings are mutually exclusive"), nil
		}
		threshold := heuristics.Severity(extractInt(req.GetArguments(), "min_severity", int(heuristics.SeverityMinor)))
		if !threshold.Valid() {
			return mcp.NewToolResultError("min_severity must be between 0 and 4"), nil
		}
		out, mutErr := s.engine.ApplyFindings(ctx, sess, threshold)
		return s.mutationResult(ctx, sess, out, mutErr)
	}

	var advisory map[string]string
	if raw := mcp.ParseStringMap(req, "advisory", nil); raw != nil {
		advisory = make(map[string]string, len(raw))
		for id, v := range raw {
			if text, ok := v.(string); ok {
				advisory[id] = text
			}
		}
	}

	out, mutErr := s.engine.ApplyActionable(ctx, sess, selected, advisory)
	return s.mutationResult(ctx, sess, out, mutErr)
}

// handleRegenerate revises the pathway from a free-text instruction.
func (s *PathwayServer) handleRegenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}
	instruction, err := req.RequireString("instruction")
	if err != nil {
		return mcp.NewToolResultError("instruction is required"), nil
	}
	evidence, _, err := decodeArg[[]schema.Citation](req, "evidence")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid evidence: %v", err)), nil
	}

	out, mutErr := s.engine.RegenerateFreeform(ctx, sess, instruction, evidence)
	return s.mutationResult(ctx, sess, out, mutErr)
}

// handleReorganize regroups a large pathway.
func (s *PathwayServer) handleReorganize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}
	out, mutErr := s.engine.Reorganize(ctx, sess)
	return s.mutationResult(ctx, sess, out, mutErr)
}

// handleUndo restores the previous graph.
func (s *PathwayServer) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}
	g, err := s.engine.Undo(ctx, sess)
	if err != nil {
		return toolError(err), nil
	}

	s.persist(ctx, sess)
	if s.events == nil {
		s.notifyChange(ctx, sess, schema.OpUndo, true)
	}
	return marshalResult(map[string]any{
		"session_id":    sess.ID,
		"state":         sess.State(),
		"history_depth": sess.HistoryDepth(),
		"graph":         g,
	})
}

// handleStatus returns a snapshot of a session.
func (s *PathwayServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}

	g := sess.Current()
	status := map[string]any{
		"session_id":       sess.ID,
		"title":            s.sessions.Title(sess.ID),
		"state":            sess.State(),
		"pending":          sess.Pending(),
		"history_depth":    sess.HistoryDepth(),
		"history_capacity": sess.HistoryCapacity(),
		"node_count":       g.Len(),
		"content_hash":     g.ContentHash(),
	}
	if prev, ok := sess.UndoTarget(); ok {
		status["undo_node_count"] = prev.Len()
	}
	if last := sess.Last(); last != nil {
		status["last_operation"] = last.Operation
		status["last_accepted"] = last.Accepted
		if last.Reason != nil {
			status["last_reason"] = last.Reason
		}
		if len(last.Advisories) > 0 {
			status["last_advisories"] = last.Advisories
		}
	}
	if req.GetBool("include_nodes", true) {
		status["nodes"] = g
	}
	return marshalResult(status)
}

// handleDiagram renders the session graph in the requested format.
func (s *PathwayServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}
	formatName, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	format, err := diagram.ParseFormat(formatName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if sess.Current().Len() == 0 {
		return mcp.NewToolResultError("session has no pathway to draw"), nil
	}

	title := req.GetString("title", s.sessions.Title(sess.ID))
	data, renderErr := s.engine.Diagram(ctx, sess, title, format)
	if renderErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram render failed: %v", renderErr)), nil
	}

	if format.Binary() {
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleEvaluate records a heuristic finding for a session.
func (s *PathwayServer) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return res, nil
	}
	heuristicID, err := req.RequireString("heuristic_id")
	if err != nil {
		return mcp.NewToolResultError("heuristic_id is required"), nil
	}
	if _, ok := req.GetArguments()["severity"]; !ok {
		return mcp.NewToolResultError("severity is required"), nil
	}

	ev := heuristics.Evaluation{
		HeuristicID: heuristicID,
		Severity:    heuristics.Severity(extractInt(req.GetArguments(), "severity", -1)),
		Observation: req.GetString("observation", ""),
	}
	if evalErr := s.engine.Evaluate(sess, ev); evalErr != nil {
		return toolError(evalErr), nil
	}

	s.persist(ctx, sess)
	return marshalResult(map[string]any{
		"session_id":  sess.ID,
		"evaluations": s.engine.Evaluations(sess),
	})
}

// handleHistory lists the persisted refinement events of a session.
func (s *PathwayServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("event history requires a configured store"), nil
	}

	since := int64(extractInt(req.GetArguments(), "since", 0))
	events, qErr := s.store.GetEvents(ctx, sessionID, since)
	if qErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
	}
	return marshalResult(map[string]any{"session_id": sessionID, "events": events})
}

// --- Internal helpers ---

// mutationResult turns an engine outcome into a tool result. Rejected
// candidates are reported as results with accepted=false; failures that
// happened before any candidate was produced are tool errors.
func (s *PathwayServer) mutationResult(ctx context.Context, sess *refinement.Session, out *refinement.Outcome, err error) (*mcp.CallToolResult, error) {
	if out == nil {
		if err == nil {
			err = schema.NewError(schema.ErrCodeGenerationFailed, "no outcome produced")
		}
		return toolError(err), nil
	}

	s.persist(ctx, sess)
	if s.events == nil {
		s.notifyChange(ctx, sess, out.Operation, out.Accepted)
	}
	return marshalResult(out)
}

// session returns a loaded session, falling back to the store.
func (s *PathwayServer) session(ctx context.Context, id string) (*refinement.Session, error) {
	if sess, ok := s.sessions.Get(id); ok {
		return sess, nil
	}
	if s.store == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
	}

	rec, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := rec.Session(s.sessionOptions()...)

	evals, err := s.store.ListEvaluations(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, ev := range evals {
		if evalErr := s.engine.Evaluate(sess, ev); evalErr != nil {
			s.logger.Warn("dropping stored evaluation", "session_id", id, "heuristic_id", ev.HeuristicID, "error", evalErr)
		}
	}

	s.sessions.Put(sess, rec.Title)
	s.logger.Info("session restored", "session_id", id, "nodes", len(rec.Nodes), "history", len(rec.History))
	return sess, nil
}

// requireSession resolves the session_id argument and subscribes the caller.
func (s *PathwayServer) requireSession(ctx context.Context, req mcp.CallToolRequest) (*refinement.Session, *mcp.CallToolResult) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcp.NewToolResultError("session_id is required")
	}
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, toolError(err)
	}
	s.captureSession(ctx, sess.ID)
	return sess, nil
}

// resolveGraph takes the nodes argument when present, else the session graph.
func (s *PathwayServer) resolveGraph(ctx context.Context, req mcp.CallToolRequest) (*schema.Graph, *refinement.Session, *mcp.CallToolResult) {
	nodes, hasNodes, err := decodeArg[[]schema.Node](req, "nodes")
	if err != nil {
		return nil, nil, mcp.NewToolResultError(fmt.Sprintf("invalid nodes: %v", err))
	}
	if hasNodes {
		return schema.NewGraph(nodes), nil, nil
	}
	if req.GetString("session_id", "") == "" {
		return nil, nil, mcp.NewToolResultError("one of nodes or session_id is required")
	}
	sess, res := s.requireSession(ctx, req)
	if res != nil {
		return nil, nil, res
	}
	return sess.Current(), sess, nil
}

func (s *PathwayServer) sessionOptions() []refinement.SessionOption {
	opts := []refinement.SessionOption{refinement.WithHistoryCapacity(s.engine.Config().HistoryCapacity)}
	if s.cache != nil {
		opts = append(opts, refinement.WithCache(s.cache))
	}
	return opts
}

// persist saves the session and its evaluations. Store failures are logged;
// the in-memory session stays authoritative.
func (s *PathwayServer) persist(ctx context.Context, sess *refinement.Session) {
	if s.store == nil {
		return
	}
	rec, err := store.RecordFromSession(ctx, sess, s.sessions.Title(sess.ID))
	if err == nil {
		err = s.store.SaveSession(ctx, rec)
	}
	if err == nil {
		err = s.store.SaveEvaluations(ctx, sess.ID, s.engine.Evaluations(sess))
	}
	if err != nil {
		s.logger.Error("failed to persist session", "session_id", sess.ID, "error", err)
	}
}

func (s *PathwayServer) notifyChange(ctx context.Context, sess *refinement.Session, op schema.Operation, accepted bool) {
	g := sess.Current()
	err := s.notifier.Notify(ctx, sess.ID, map[string]any{
		"type":         "pathway_changed",
		"session_id":   sess.ID,
		"operation":    op,
		"accepted":     accepted,
		"state":        sess.State(),
		"node_count":   g.Len(),
		"content_hash": g.ContentHash(),
	})
	if err != nil {
		s.logger.Warn("change notification failed", "session_id", sess.ID, "error", err)
	}
}

// captureSession subscribes the calling MCP client to changes of a pathway session.
func (s *PathwayServer) captureSession(ctx context.Context, sessionID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Watch(sessionID, session.SessionID())
	}
}

// decodeArg re-decodes an untyped argument into T. The bool reports whether
// the argument was present.
func decodeArg[T any](req mcp.CallToolRequest, key string) (T, bool, error) {
	var out T
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return out, false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return out, true, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, true, err
	}
	return out, true, nil
}

// toolError formats an error as a tool error, prefixed by its code when it has one.
func toolError(err error) *mcp.CallToolResult {
	var perr *schema.PathwayError
	if errors.As(err, &perr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", perr.Code, perr.Message))
	}
	return mcp.NewToolResultError(err.Error())
}

// extractInt safely extracts an integer from an argument map.
func extractInt(args map[string]any, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

func diagramTool() mcp.Tool {
	formats := make([]string, len(diagram.Formats))
	for i, f := range diagram.Formats {
		formats[i] = string(f)
	}
	return mcp.NewTool("pathway.diagram",
		mcp.WithDescription("Draw the session pathway. Returns Mermaid or DOT source, SVG markup, ASCII art, or a base64-encoded PNG"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum(formats...),
			mcp.Description("Output format"),
		),
		mcp.WithString("title", mcp.Description("Diagram title (default: session title)")),
	)
}
