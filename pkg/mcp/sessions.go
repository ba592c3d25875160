package mcp

import (
	"sort"
	"sync"

	"github.com/rendis/pathway/internal/refinement"
)

// SessionRegistry holds the live refinement sessions of a server and the MCP
// client sessions watching each of them.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*refinement.Session
	titles   map[string]string
	watchers map[string]map[string]struct{} // pathway session → MCP client sessions
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*refinement.Session),
		titles:   make(map[string]string),
		watchers: make(map[string]map[string]struct{}),
	}
}

// Put adds or replaces a session. An empty title keeps the previous one.
func (r *SessionRegistry) Put(s *refinement.Session, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	if title != "" {
		r.titles[s.ID] = title
	}
}

// Title returns the display title of a session.
func (r *SessionRegistry) Title(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.titles[id]
}

// Get returns the session with the given id, if loaded.
func (r *SessionRegistry) Get(id string) (*refinement.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// IDs returns the loaded session ids, sorted.
func (r *SessionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Drop unloads a session and forgets its watchers.
func (r *SessionRegistry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.titles, id)
	delete(r.watchers, id)
}

// Watch subscribes an MCP client session to changes of a pathway session.
func (r *SessionRegistry) Watch(sessionID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[sessionID]
	if !ok {
		w = make(map[string]struct{})
		r.watchers[sessionID] = w
	}
	w[clientID] = struct{}{}
}

// Watchers returns the MCP client sessions watching a pathway session.
func (r *SessionRegistry) Watchers(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.watchers[sessionID]))
	for id := range r.watchers[sessionID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Remove deletes every subscription of an MCP client session.
// Called when the client disconnects.
func (r *SessionRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watchers {
		delete(w, clientID)
	}
}
