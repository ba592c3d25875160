// Package streaming fans refinement events out to in-process subscribers.
package streaming

import (
	"context"
	"errors"

	"github.com/rendis/pathway/pkg/schema"
)

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID string   `json:"session_id,omitempty"`
	Types     []string `json:"types,omitempty"`
}

// EventHub provides pub/sub for live refinement events.
type EventHub interface {
	Publish(ctx context.Context, event *schema.Event) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan *schema.Event, func(), error)
}

// Sink receives events; both the persistent event log and hubs implement it.
type Sink interface {
	AppendEvent(ctx context.Context, event *schema.Event) error
}

type tee []Sink

// Tee returns a Sink that hands every event to each sink in order. All sinks
// see the event even when an earlier one fails; the errors are joined.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) AppendEvent(ctx context.Context, event *schema.Event) error {
	var errs []error
	for _, s := range t {
		if err := s.AppendEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
