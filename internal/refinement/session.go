package refinement

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rendis/pathway/internal/artifacts"
	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/internal/history"
	"github.com/rendis/pathway/pkg/schema"
)

// Session owns one user's working pathway, its undo history and its derived
// artifact cache. Sessions share nothing and are passed to the Engine
// explicitly.
type Session struct {
	ID string

	mu      sync.RWMutex
	graph   *schema.Graph
	history *history.Stack
	state   State
	last    *Outcome
	cache   artifacts.Cache
	evals   *heuristics.Evaluations

	pending  atomic.Bool // an external call is outstanding
	inFlight atomic.Bool // a mutation holds the session
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID sets the session id; a random UUID is used otherwise.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.ID = id }
}

// WithCache sets the artifact cache; a MemoryCache is used otherwise.
func WithCache(c artifacts.Cache) SessionOption {
	return func(s *Session) { s.cache = c }
}

// WithHistoryCapacity bounds the undo history.
func WithHistoryCapacity(n int) SessionOption {
	return func(s *Session) { s.history = history.New(n) }
}

// NewSession creates a session around g. A nil g starts an empty session
// waiting for Engine.Initialize.
func NewSession(g *schema.Graph, opts ...SessionOption) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		history: history.New(0),
		state:   StateDraft,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = artifacts.NewMemoryCache()
	}
	if g == nil {
		g = schema.NewGraph(nil)
	}
	s.graph = g.Clone()
	return s
}

// Current returns the live graph. Graphs are immutable, so the value may be
// held across mutations.
func (s *Session) Current() *schema.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// HistoryDepth returns the number of undo snapshots.
func (s *Session) HistoryDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Depth()
}

// HistoryCapacity returns the snapshot bound, 0 when unbounded.
func (s *Session) HistoryCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Capacity()
}

// UndoTarget returns the graph Undo would restore, without restoring it.
func (s *Session) UndoTarget() (*schema.Graph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Peek()
}

// History returns the undo snapshots, oldest first.
func (s *Session) History() []*schema.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Snapshots()
}

// State returns the state of the latest mutation attempt.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Pending reports whether an external generation call is outstanding.
func (s *Session) Pending() bool {
	return s.pending.Load()
}

// Last returns the outcome of the latest mutation attempt, or nil.
func (s *Session) Last() *Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Cache returns the session's artifact cache.
func (s *Session) Cache() artifacts.Cache {
	return s.cache
}

// Restore replaces graph and history wholesale, as when loading a persisted
// session. The state resets to draft.
func (s *Session) Restore(g *schema.Graph, snapshots []*schema.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g == nil {
		g = schema.NewGraph(nil)
	}
	s.graph = g.Clone()
	s.history.Restore(snapshots)
	s.state = StateDraft
	s.last = nil
}

// evaluations returns the session's heuristic ratings, creating the sheet on
// first use.
func (s *Session) evaluations(c *heuristics.Catalog) *heuristics.Evaluations {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evals == nil {
		s.evals = heuristics.NewEvaluations(c)
	}
	return s.evals
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Session) setLast(o *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = o
}

// replace snapshots the current graph and swaps in g. It returns the
// replaced graph.
func (s *Session) replace(g *schema.Graph) *schema.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.graph
	s.history.Push(prev)
	s.graph = g
	return prev
}

// reset swaps in g and clears history.
func (s *Session) reset(g *schema.Graph) *schema.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.graph
	s.history.Clear()
	s.graph = g
	return prev
}

// undo pops the newest snapshot into place. It returns the replaced graph.
func (s *Session) undo() (restored, prev *schema.Graph, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.history.Pop()
	if !ok {
		return nil, nil, false
	}
	prev = s.graph
	s.graph = snap
	return snap, prev, true
}

// acquire claims the session for one mutation.
func (s *Session) acquire() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return schema.NewErrorf(schema.ErrCodeMutationInFlight,
			"session %s already has a mutation in flight", s.ID).
			WithDetails(map[string]any{"session_id": s.ID})
	}
	return nil
}

func (s *Session) release() {
	s.inFlight.Store(false)
}
