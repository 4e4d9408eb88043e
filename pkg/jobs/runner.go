// Package jobs runs recall's maintenance jobs: finalizing idle chats and
// compressing memory. The same runner backs HTTP triggers, CLI subcommands
// and the in-process cron scheduler.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/telemetry/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Job names.
const (
	JobFinalizeIdle = "finalize-idle"
	JobCompress     = "compress-memory"
)

// Triggers.
const (
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Hub is the part of the memory hub the jobs drive.
type Hub interface {
	FinalizeIdle(ctx context.Context, idleBefore time.Time, embed bool) (memory.FinalizeReport, error)
	CompressAll(ctx context.Context) (memory.CompressionReport, error)
}

// Logger is the minimal logger interface used by jobs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// Recorder receives job metrics.
type Recorder interface {
	RecordJob(job, trigger, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordJob(string, string, string, time.Duration) {}

// Publisher announces finished jobs.
type Publisher interface {
	JobCompleted(job, trigger, status string, result any)
}

type nopPublisher struct{}

func (nopPublisher) JobCompleted(string, string, string, any) {}

// Runner executes jobs against the memory hub.
type Runner struct {
	hub Hub

	mu  sync.RWMutex
	cfg config.JobsConfig

	logger    Logger
	metrics   Recorder
	publisher Publisher
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithPublisher sets the completion publisher.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates a job runner.
func NewRunner(hub Hub, cfg config.JobsConfig, opts ...Option) *Runner {
	r := &Runner{
		hub:       hub,
		cfg:       cfg,
		logger:    nopLogger{},
		metrics:   nopRecorder{},
		publisher: nopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpdateConfig swaps the job settings used by subsequent runs.
func (r *Runner) UpdateConfig(cfg config.JobsConfig) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Runner) config() config.JobsConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// FinalizeIdle finalizes and summarizes chats idle longer than the
// configured idle window.
func (r *Runner) FinalizeIdle(ctx context.Context, trigger string) (report memory.FinalizeReport, err error) {
	cfg := r.config()
	idle := time.Duration(cfg.IdleMinutes) * time.Minute
	cutoff := r.now().Add(-idle)

	ctx, span := tracing.Start(ctx, "jobs."+JobFinalizeIdle, attribute.String("trigger", trigger))
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	report, err = r.hub.FinalizeIdle(ctx, cutoff, cfg.EmbedOnFinalize)
	status := StatusOK
	if err != nil {
		status = StatusError
		r.logger.Error("finalize-idle job failed", "trigger", trigger, "error", err)
	} else {
		r.logger.Info("finalize-idle job completed",
			"trigger", trigger,
			"checked", report.Checked,
			"finalized", report.Finalized,
			"embedded", report.Embedded,
		)
	}
	r.finish(JobFinalizeIdle, trigger, status, time.Since(start), report)
	return report, err
}

// Compress distills memory for every user. Users that fail are reported
// with -1 counts and do not fail the run.
func (r *Runner) Compress(ctx context.Context, trigger string) (report memory.CompressionReport, err error) {
	ctx, span := tracing.Start(ctx, "jobs."+JobCompress, attribute.String("trigger", trigger))
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	report, err = r.hub.CompressAll(ctx)
	status := StatusOK
	switch {
	case err != nil:
		status = StatusError
		r.logger.Error("compress job failed", "trigger", trigger, "error", err)
	case report.Failures() > 0:
		status = StatusPartial
		r.logger.Warn("compress job completed with failures",
			"trigger", trigger,
			"users", len(report),
			"failed", report.Failures(),
		)
	default:
		r.logger.Info("compress job completed", "trigger", trigger, "users", len(report))
	}
	r.finish(JobCompress, trigger, status, time.Since(start), report)
	return report, err
}

func (r *Runner) finish(job, trigger, status string, d time.Duration, result any) {
	r.metrics.RecordJob(job, trigger, status, d)
	r.publisher.JobCompleted(job, trigger, status, result)
}
