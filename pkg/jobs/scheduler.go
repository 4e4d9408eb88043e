package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/recallkit/recall/config"
)

// Scheduler runs jobs on cron specs. A run that is still going when its
// next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  *Runner
	logger  Logger
	entries map[string]cron.EntryID

	mu  sync.Mutex
	ctx context.Context
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct{ l Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cron logs every wake-up at info; keep those out of the service log.
	if msg == "wake" || msg == "run" {
		return
	}
	c.l.Info("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// NewScheduler registers the configured jobs. Jobs with an empty spec are
// not scheduled.
func NewScheduler(runner *Runner, cfg config.SchedulerConfig, logger Logger) (*Scheduler, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	cl := cronLogger{l: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{JobFinalizeIdle, cfg.FinalizeIdle, func(ctx context.Context) { _, _ = runner.FinalizeIdle(ctx, TriggerSchedule) }},
		{JobCompress, cfg.CompressMemory, func(ctx context.Context) { _, _ = runner.Compress(ctx, TriggerSchedule) }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		run := j.run
		id, err := s.cron.AddFunc(j.spec, func() { run(s.context()) })
		if err != nil {
			return nil, fmt.Errorf("jobs: schedule %s %q: %w", j.name, j.spec, err)
		}
		s.entries[j.name] = id
	}
	return s, nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start begins firing jobs. Runs receive ctx, so cancelling it aborts
// in-flight jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("job scheduler started", "jobs", len(s.entries))
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs: waiting for running jobs: %w", ctx.Err())
	}
}

// Next returns the next scheduled run of job, or the zero time when the
// job is not scheduled or the scheduler is not running.
func (s *Scheduler) Next(job string) time.Time {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Scheduled returns the names of the scheduled jobs.
func (s *Scheduler) Scheduled() []string {
	names := make([]string, 0, len(s.entries))
	for _, name := range []string{JobFinalizeIdle, JobCompress} {
		if _, ok := s.entries[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
