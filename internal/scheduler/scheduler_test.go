package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePruner records prune cutoffs.
type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	vacuums int
	err     error
}

func (f *fakePruner) PruneSessions(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 2, f.err
}

func (f *fakePruner) Vacuum(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vacuums++
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestScheduler_TickRunsDueJobs(t *testing.T) {
	c := newClock()
	s := NewScheduler(nil, WithClock(c.now))
	p := &fakePruner{}

	require.NoError(t, s.Register(PruneJob("0 * * * *", p, 24*time.Hour, nil)))
	require.NoError(t, s.Register(VacuumJob("0 3 * * *", p)))

	s.tick(context.Background())
	assert.Empty(t, p.cutoffs, "nothing due yet")

	c.advance(time.Hour)
	s.tick(context.Background())
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, c.now().Add(-24*time.Hour), p.cutoffs[0])
	assert.Zero(t, p.vacuums)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "prune-sessions", jobs[0].Name)
	assert.Equal(t, "success", jobs[0].LastRunStatus)
	assert.Equal(t, c.now().Add(time.Hour), jobs[0].NextRunAt)
	assert.Nil(t, jobs[1].LastRunAt)
}

func TestScheduler_FailedRunRecordsError(t *testing.T) {
	c := newClock()
	s := NewScheduler(nil, WithClock(c.now))
	p := &fakePruner{err: errors.New("database is locked")}
	require.NoError(t, s.Register(PruneJob("*/5 * * * *", p, time.Hour, nil)))

	err := s.RunNow(context.Background(), "prune-sessions")
	require.Error(t, err)
	assert.Equal(t, "error", s.Jobs()[0].LastRunStatus)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(nil)
	p := &fakePruner{}

	assert.Error(t, s.Register(Job{Name: "bad", Cron: "not a cron", Run: func(context.Context, time.Time) error { return nil }}))
	assert.Error(t, s.Register(Job{Name: "", Cron: "* * * * *"}))
	require.NoError(t, s.Register(VacuumJob("@daily", p)))
	assert.Error(t, s.Register(VacuumJob("@daily", p)), "duplicate name")

	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestScheduler_Dedup(t *testing.T) {
	s := NewScheduler(nil)
	assert.True(t, s.tryAcquire("a"))
	assert.False(t, s.tryAcquire("a"))
	s.releaseJob("a")
	assert.True(t, s.tryAcquire("a"))
}

func TestScheduler_CalculateNextRun(t *testing.T) {
	s := NewScheduler(nil)
	from := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	next, err := s.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("invalid", from)
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(nil, WithInterval(10*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
