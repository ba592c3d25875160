package refinement

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rendis/pathway/pkg/schema"
)

// State is the lifecycle state of a session's most recent mutation attempt.
type State string

const (
	StateDraft     State = "draft"     // attempt started, candidate pending
	StateValidated State = "validated" // candidate passed schema, count and structure checks
	StateAccepted  State = "accepted"  // candidate replaced the graph
	StateRejected  State = "rejected"  // graph left untouched
)

// ValidTransitions defines the allowed state transitions.
var ValidTransitions = map[State][]State{
	StateDraft:     {StateValidated, StateRejected},
	StateValidated: {StateAccepted, StateRejected},
	StateAccepted:  {StateDraft},
	StateRejected:  {StateDraft},
}

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to State) error

// EventSink receives the session event log. The store's libsql backend
// satisfies it.
type EventSink interface {
	AppendEvent(ctx context.Context, event *schema.Event) error
}

type hookKey struct {
	from, to State
}

// FSM validates session state transitions, runs hooks and emits a
// state_changed event per transition.
type FSM struct {
	mu     sync.Mutex
	sink   EventSink
	before map[hookKey][]TransitionHook
	after  map[hookKey][]TransitionHook
}

// NewFSM creates an FSM emitting to sink. A nil sink emits nothing.
func NewFSM(sink EventSink) *FSM {
	return &FSM{
		sink:   sink,
		before: make(map[hookKey][]TransitionHook),
		after:  make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A hook error aborts
// the transition.
func (f *FSM) OnBefore(from, to State, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to State, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition moves s from its current state to `to`.
func (f *FSM) Transition(ctx context.Context, s *Session, op schema.Operation, to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := s.State()
	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": s.ID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	s.setState(to)

	if f.sink != nil {
		payload, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
		event := &schema.Event{
			SessionID: s.ID,
			Type:      schema.EventStateChanged,
			Operation: op,
			Payload:   payload,
			Timestamp: time.Now().UTC(),
		}
		if err := f.sink.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit state event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

func isValidTransition(from, to State) bool {
	for _, a := range ValidTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
