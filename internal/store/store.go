package store

import (
	"context"
	"time"

	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	PruneSessions(ctx context.Context, updatedBefore time.Time) (int64, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *schema.Event) error
	GetEvents(ctx context.Context, sessionID string, since int64) ([]*schema.Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*schema.Event, error)

	// Heuristic evaluations
	SaveEvaluations(ctx context.Context, sessionID string, evals []heuristics.Evaluation) error
	ListEvaluations(ctx context.Context, sessionID string) ([]heuristics.Evaluation, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
