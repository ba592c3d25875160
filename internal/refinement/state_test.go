package refinement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/pkg/schema"
)

func TestFSM_Transitions(t *testing.T) {
	sink := &recordingSink{}
	f := NewFSM(sink)
	s := NewSession(nil)
	ctx := context.Background()

	require.NoError(t, f.Transition(ctx, s, schema.OpApply, StateValidated))
	require.NoError(t, f.Transition(ctx, s, schema.OpApply, StateAccepted))
	assert.Equal(t, StateAccepted, s.State())

	err := f.Transition(ctx, s, schema.OpApply, StateRejected)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	assert.Equal(t, StateAccepted, s.State())

	require.NoError(t, f.Transition(ctx, s, schema.OpApply, StateDraft))
	assert.Len(t, sink.events, 3)
	for _, e := range sink.events {
		assert.Equal(t, schema.EventStateChanged, e.Type)
		assert.Equal(t, s.ID, e.SessionID)
	}
	assert.JSONEq(t, `{"from":"accepted","to":"draft"}`, string(sink.events[2].Payload))
}

func TestFSM_Hooks(t *testing.T) {
	f := NewFSM(nil)
	s := NewSession(nil)
	ctx := context.Background()

	var seen []string
	f.OnAfter(StateDraft, StateValidated, func(from, to State) error {
		seen = append(seen, string(from)+">"+string(to))
		return nil
	})
	f.OnBefore(StateValidated, StateAccepted, func(State, State) error {
		return errors.New("frozen")
	})

	require.NoError(t, f.Transition(ctx, s, schema.OpRegenerate, StateValidated))
	assert.Equal(t, []string{"draft>validated"}, seen)

	err := f.Transition(ctx, s, schema.OpRegenerate, StateAccepted)
	require.EqualError(t, err, "frozen")
	assert.Equal(t, StateValidated, s.State())
}

func TestGuard(t *testing.T) {
	_, err := NewGuard("candidate.quality_score >=")
	require.Error(t, err)

	g, err := NewGuard("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAcceptanceGuard, g.Expression())
}
