package schema

import (
	"encoding/json"
	"time"
)

// Event type constants for the session event log.
const (
	EventSessionCreated     = "session_created"
	EventPathwayInitialized = "pathway_initialized"
	EventMutationAccepted   = "mutation_accepted"
	EventMutationRejected   = "mutation_rejected"
	EventUndoApplied        = "undo_applied"
	EventStateChanged       = "state_changed"
)

// Operation names the engine operation an event or log line belongs to.
type Operation string

const (
	OpInitialize Operation = "initialize"
	OpApply      Operation = "apply_actionable"
	OpRegenerate Operation = "regenerate_freeform"
	OpReorganize Operation = "reorganize"
	OpUndo       Operation = "undo"
)

// Event is an append-only record of something that happened to a session.
type Event struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Operation Operation       `json:"operation,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence,omitempty"` // per session, assigned by the store
}
