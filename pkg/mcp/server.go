package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/pathway/internal/artifacts"
	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/internal/refinement"
	"github.com/rendis/pathway/internal/store"
	"github.com/rendis/pathway/internal/streaming"
	"github.com/rendis/pathway/pkg/schema"
)

// PathwayServerDeps holds the dependencies for creating a PathwayServer.
type PathwayServerDeps struct {
	Engine *refinement.Engine
	Store  store.Store     // optional; sessions are persisted after every change
	Cache  artifacts.Cache // optional shared artifact cache; per-session memory otherwise
	// Events, when set, is the hub the engine publishes to; watchers are then
	// notified from the event stream instead of from the tool handlers.
	Events streaming.EventHub
	Logger *slog.Logger
}

// PathwayServer wraps an MCP server with pathway refinement tool handlers.
type PathwayServer struct {
	engine    *refinement.Engine
	store     store.Store
	cache     artifacts.Cache
	events    streaming.EventHub
	sessions  *SessionRegistry
	notifier  ChangeNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewPathwayServer creates a new PathwayServer with every tool registered.
func NewPathwayServer(deps PathwayServerDeps) *PathwayServer {
	s := &PathwayServer{
		engine:   deps.Engine,
		store:    deps.Store,
		cache:    deps.Cache,
		events:   deps.Events,
		sessions: NewSessionRegistry(),
		logger:   logging.OrDefault(deps.Logger),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"pathway",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Pathway refines clinical decision pathways. Use pathway.open or pathway.initialize to start a session, "+
			"pathway.apply / pathway.regenerate / pathway.reorganize to propose changes (each is accepted only if the candidate "+
			"passes schema, node-count and structural checks), pathway.undo to revert, pathway.status and pathway.diagram to inspect."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PathwayServer) Serve(ctx context.Context) error {
	if s.events != nil {
		ch, cancel, err := s.events.Subscribe(ctx, streaming.EventFilter{Types: notifiedEvents})
		if err != nil {
			return err
		}
		defer cancel()
		go s.forward(ctx, ch)
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// notifiedEvents are the engine events that change what a watcher sees.
// pathway_initialized is skipped: initialize also emits mutation_accepted.
var notifiedEvents = []string{
	schema.EventMutationAccepted,
	schema.EventMutationRejected,
	schema.EventUndoApplied,
}

// forward relays hub events to watching clients until ch closes or ctx ends.
func (s *PathwayServer) forward(ctx context.Context, ch <-chan *schema.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			sess, loaded := s.sessions.Get(e.SessionID)
			if !loaded {
				continue
			}
			s.notifyChange(ctx, sess, e.Operation, e.Type != schema.EventMutationRejected)
		}
	}
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PathwayServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the live session registry.
func (s *PathwayServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *PathwayServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: openTool(), Handler: s.handleOpen},
		{Tool: initializeTool(), Handler: s.handleInitialize},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: scoreTool(), Handler: s.handleScore},
		{Tool: catalogTool(), Handler: s.handleCatalog},
		{Tool: applyTool(), Handler: s.handleApply},
		{Tool: regenerateTool(), Handler: s.handleRegenerate},
		{Tool: reorganizeTool(), Handler: s.handleReorganize},
		{Tool: undoTool(), Handler: s.handleUndo},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: evaluateTool(), Handler: s.handleEvaluate},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func openTool() mcp.Tool {
	return mcp.NewTool("pathway.open",
		mcp.WithDescription("Open a refinement session from a node list, or resume a persisted session"),
		mcp.WithString("session_id", mcp.Description("Session to resume, or id for the new session")),
		mcp.WithArray("nodes", mcp.Description("Pathway node list ({id, type, label, evidence, detail, branches, next, role})"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("title", mcp.Description("Human-readable pathway title")),
	)
}

func initializeTool() mcp.Tool {
	return mcp.NewTool("pathway.initialize",
		mcp.WithDescription("Generate a new pathway from an instruction, replacing the session graph and clearing history"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("instruction", mcp.Required(), mcp.Description("Clinical question or scope of the pathway")),
		mcp.WithArray("evidence", mcp.Description("Citations ({id, title, summary}) to ground the pathway"),
			mcp.Items(map[string]any{"type": "object"})),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("pathway.validate",
		mcp.WithDescription("Check a pathway for cycles, non-terminal End nodes and reconverging branches"),
		mcp.WithString("session_id", mcp.Description("Validate the session's current graph")),
		mcp.WithArray("nodes", mcp.Description("Validate this node list instead"),
			mcp.Items(map[string]any{"type": "object"})),
	)
}

func scoreTool() mcp.Tool {
	return mcp.NewTool("pathway.score",
		mcp.WithDescription("Compute complexity metrics and the quality score of a pathway"),
		mcp.WithString("session_id", mcp.Description("Score the session's current graph")),
		mcp.WithArray("nodes", mcp.Description("Score this node list instead"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithArray("evidence", mcp.Description("Citation context for unresolved-citation checks"),
			mcp.Items(map[string]any{"type": "object"})),
	)
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("pathway.catalog",
		mcp.WithDescription("List the usability heuristics and which are actionable"),
	)
}

func applyTool() mcp.Tool {
	return mcp.NewTool("pathway.apply",
		mcp.WithDescription("Apply selected actionable heuristics to the pathway in one generation request"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithArray("heuristics", mcp.Description("Actionable heuristic ids, e.g. [\"H2\", \"H5\"]"),
			mcp.WithStringItems()),
		mcp.WithObject("advisory", mcp.Description("Reviewer notes keyed by heuristic id")),
		mcp.WithBoolean("from_findings", mcp.Description("Apply the recorded findings instead of an explicit heuristics list")),
		mcp.WithNumber("min_severity", mcp.Description("With from_findings, apply findings at or above this severity (0-4, default 2)")),
	)
}

func regenerateTool() mcp.Tool {
	return mcp.NewTool("pathway.regenerate",
		mcp.WithDescription("Revise the pathway from a free-text instruction"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("instruction", mcp.Required(), mcp.Description("What to change")),
		mcp.WithArray("evidence", mcp.Description("Upstream citations ({id, title, summary})"),
			mcp.Items(map[string]any{"type": "object"})),
	)
}

func reorganizeTool() mcp.Tool {
	return mcp.NewTool("pathway.reorganize",
		mcp.WithDescription("Regroup a large pathway without changing its node count"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
	)
}

func undoTool() mcp.Tool {
	return mcp.NewTool("pathway.undo",
		mcp.WithDescription("Restore the pathway to its state before the last accepted change"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("pathway.status",
		mcp.WithDescription("Get the current pathway, history depth and last outcome of a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithBoolean("include_nodes", mcp.Description("Include the node list (default true)")),
	)
}

func evaluateTool() mcp.Tool {
	return mcp.NewTool("pathway.evaluate",
		mcp.WithDescription("Record a severity rating (0-4) for a heuristic against the session's pathway"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("heuristic_id", mcp.Required(), mcp.Description("Heuristic id, e.g. H9")),
		mcp.WithNumber("severity", mcp.Required(), mcp.Description("0 none, 1 cosmetic, 2 minor, 3 major, 4 catastrophe")),
		mcp.WithString("observation", mcp.Description("What the reviewer saw")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("pathway.history",
		mcp.WithDescription("List the refinement events of a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithNumber("since", mcp.Description("Only events after this sequence number")),
	)
}
