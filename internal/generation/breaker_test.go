package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/pkg/schema"
)

type scriptedGenerator struct {
	calls int
	fail  bool
}

func (g *scriptedGenerator) Generate(context.Context, string, bool) (*Result, error) {
	g.calls++
	if g.fail {
		return nil, errors.New("upstream unavailable")
	}
	return &Result{Text: "ok"}, nil
}

func newTestBreaker(next Generator, threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(next, BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(&scriptedGenerator{}, 3, time.Minute)
	res, err := b.Generate(context.Background(), "p", false)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	gen := &scriptedGenerator{fail: true}
	b, _ := newTestBreaker(gen, 3, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), "p", true)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, b.State())

	_, err := b.Generate(context.Background(), "p", true)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeGenerationFailed))
	assert.Equal(t, 3, gen.calls, "open circuit must not reach the generator")
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	gen := &scriptedGenerator{fail: true}
	b, _ := newTestBreaker(gen, 3, time.Minute)

	_, _ = b.Generate(context.Background(), "p", true)
	_, _ = b.Generate(context.Background(), "p", true)
	gen.fail = false
	_, err := b.Generate(context.Background(), "p", true)
	require.NoError(t, err)

	gen.fail = true
	_, _ = b.Generate(context.Background(), "p", true)
	_, _ = b.Generate(context.Background(), "p", true)
	assert.Equal(t, CircuitClosed, b.State())
	assert.Equal(t, 2, b.Stats()["consecutive_failures"])
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	gen := &scriptedGenerator{fail: true}
	b, now := newTestBreaker(gen, 2, time.Minute)

	_, _ = b.Generate(context.Background(), "p", true)
	_, _ = b.Generate(context.Background(), "p", true)
	require.Equal(t, CircuitOpen, b.State())

	*now = now.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, b.State())

	gen.fail = false
	_, err := b.Generate(context.Background(), "p", true)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	gen := &scriptedGenerator{fail: true}
	b, now := newTestBreaker(gen, 1, time.Minute)

	_, _ = b.Generate(context.Background(), "p", true)
	*now = now.Add(2 * time.Minute)

	_, err := b.Generate(context.Background(), "p", true)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, b.State())
	assert.Equal(t, 2, gen.calls)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half_open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
