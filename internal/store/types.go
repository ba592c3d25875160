package store

import (
	"time"

	"github.com/rendis/pathway/pkg/schema"
)

// SessionRecord is the persisted shape of a refinement session. Artifact
// contents are derivable and not stored; only their cache keys are.
type SessionRecord struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	State       string          `json:"state"`
	Nodes       []schema.Node   `json:"nodes"`
	History     [][]schema.Node `json:"history"` // oldest first
	CacheKeys   []string        `json:"cache_keys,omitempty"`
	ContentHash string          `json:"content_hash"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// --- Filter types ---

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	UpdatedBefore *time.Time `json:"updated_before,omitempty"`
	State         string     `json:"state,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	SessionID string     `json:"session_id,omitempty"`
	Operation string     `json:"operation,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}
