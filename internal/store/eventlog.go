package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/pathway/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
// It satisfies refinement.EventSink.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-session sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *schema.Event) error {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; a write forces
	// the lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, operation, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.Type, nullStr(string(event.Operation)), nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a session with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, sessionID string, since int64) ([]*schema.Event, error) {
	return el.store.GetEvents(ctx, sessionID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*schema.Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// SessionActivity is the refinement history of a session reconstructed from
// its event log.
type SessionActivity struct {
	SessionID  string                   `json:"session_id"`
	Accepted   int                      `json:"accepted"`
	Rejected   int                      `json:"rejected"`
	Undos      int                      `json:"undos"`
	Rejections map[string]int           `json:"rejections,omitempty"` // by error code
	ByOp       map[schema.Operation]int `json:"by_operation,omitempty"`
	LastState  string                   `json:"last_state,omitempty"`
	FirstAt    *time.Time               `json:"first_at,omitempty"`
	LastAt     *time.Time               `json:"last_at,omitempty"`
}

// ReplayEvents replays all events of a session and returns its activity.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, sessionID string) (*SessionActivity, error) {
	events, err := el.store.GetEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	a := &SessionActivity{
		SessionID:  sessionID,
		Rejections: make(map[string]int),
		ByOp:       make(map[schema.Operation]int),
	}
	if len(events) == 0 {
		return a, nil
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in session %s: expected %d, got %d", sessionID, expected, e.Sequence)
		}
	}

	first, last := events[0].Timestamp, events[len(events)-1].Timestamp
	a.FirstAt, a.LastAt = &first, &last

	for _, e := range events {
		switch e.Type {
		case schema.EventMutationAccepted:
			a.Accepted++
			a.ByOp[e.Operation]++
		case schema.EventMutationRejected:
			a.Rejected++
			a.ByOp[e.Operation]++
			var p rejectionPayload
			if err := json.Unmarshal(e.Payload, &p); err == nil && p.Code != "" {
				a.Rejections[p.Code]++
			}
		case schema.EventUndoApplied:
			a.Undos++
		case schema.EventStateChanged:
			var p stateChangePayload
			if err := json.Unmarshal(e.Payload, &p); err == nil {
				a.LastState = p.To
			}
		}
	}
	return a, nil
}

type rejectionPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type stateChangePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}
