package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/internal/store"
)

// JobFunc performs one run of a maintenance job.
type JobFunc func(ctx context.Context, now time.Time) error

// Job is a named maintenance task on a five-field cron schedule.
type Job struct {
	Name string
	Cron string
	Run  JobFunc
}

// JobStatus reports the schedule state of a registered job.
type JobStatus struct {
	Name          string     `json:"name"`
	Cron          string     `json:"cron"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

type entry struct {
	job      Job
	schedule cron.Schedule
	status   JobStatus
}

// Scheduler polls its registered jobs and runs those that are due.
type Scheduler struct {
	parser   cron.Parser
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	jobsMu sync.Mutex
	jobs   map[string]*entry

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the polling interval (default 60s).
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		interval: 60 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logging.OrDefault(logger),
		jobs:     make(map[string]*entry),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. The first run is the next cron time after now.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}
	schedule, err := s.parser.Parse(job.Cron)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", job.Cron, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{
		job:      job,
		schedule: schedule,
		status:   JobStatus{Name: job.Name, Cron: job.Cron, NextRunAt: schedule.Next(s.now())},
	}
	return nil
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next run time has passed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.jobsMu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.status.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.jobsMu.Unlock()

	for _, e := range due {
		if !s.tryAcquire(e.job.Name) {
			continue // already running (dedup)
		}
		s.runJob(ctx, e, now)
		s.releaseJob(e.job.Name)
	}
}

// RunNow runs a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.jobsMu.Lock()
	e, ok := s.jobs[name]
	s.jobsMu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	if !s.tryAcquire(name) {
		return fmt.Errorf("job %q is already running", name)
	}
	defer s.releaseJob(name)
	return s.runJob(ctx, e, s.now())
}

// runJob executes a job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, e *entry, now time.Time) error {
	s.logger.Info("running scheduled job", slog.String("job", e.job.Name))

	err := e.job.Run(ctx, now)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled job failed",
			slog.String("job", e.job.Name),
			slog.String("error", err.Error()),
		)
	}

	s.jobsMu.Lock()
	e.status.LastRunAt = &now
	e.status.NextRunAt = e.schedule.Next(now)
	e.status.LastRunStatus = status
	s.jobsMu.Unlock()
	return err
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// Pruner is the store surface the maintenance jobs need.
type Pruner interface {
	PruneSessions(ctx context.Context, updatedBefore time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

var _ Pruner = store.Store(nil)

// PruneJob deletes persisted sessions idle for longer than maxAge.
func PruneJob(cronExpr string, p Pruner, maxAge time.Duration, logger *slog.Logger) Job {
	logger = logging.OrDefault(logger)
	return Job{
		Name: "prune-sessions",
		Cron: cronExpr,
		Run: func(ctx context.Context, now time.Time) error {
			n, err := p.PruneSessions(ctx, now.Add(-maxAge))
			if err != nil {
				return fmt.Errorf("prune sessions: %w", err)
			}
			if n > 0 {
				logger.Info("pruned stale sessions", slog.Int64("count", n), slog.Duration("max_age", maxAge))
			}
			return nil
		},
	}
}

// VacuumJob compacts the database.
func VacuumJob(cronExpr string, p Pruner) Job {
	return Job{
		Name: "vacuum",
		Cron: cronExpr,
		Run: func(ctx context.Context, _ time.Time) error {
			return p.Vacuum(ctx)
		},
	}
}
