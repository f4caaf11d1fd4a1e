// Package scheduler runs the periodic weather and fire jobs on cron
// schedules evaluated in India Standard Time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wraps a robfig/cron instance. A job still running when its next
// slot arrives is skipped for that slot.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	ctx  context.Context
	jobs map[string]entry
}

type entry struct {
	id  cron.EntryID
	job Job
}

// New creates a Scheduler whose specs are interpreted in loc.
func New(loc *time.Location, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		metrics: metrics,
		ctx:     context.Background(),
		jobs:    make(map[string]entry),
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { _ = s.RunNow(job.Name) })
	if err != nil {
		return fmt.Errorf("schedule job %q with spec %q: %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = entry{id: id, job: job}
	s.logger.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

// RunNow runs the named job immediately in the calling goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	ctx := s.ctx
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	start := time.Now()
	err := e.job.Run(ctx)
	if err != nil {
		s.metrics.JobRuns.WithLabelValues(name, "error").Inc()
		s.logger.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
		return err
	}
	s.metrics.JobRuns.WithLabelValues(name, "success").Inc()
	s.logger.Info("job finished", "job", name, "duration", time.Since(start))
	return nil
}

// Next returns the next scheduled run of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
