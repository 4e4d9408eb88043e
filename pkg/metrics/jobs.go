package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initJobMetrics(cfg Config) {
	m.jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job, trigger and status",
		},
		[]string{"job", "trigger", "status"},
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration in seconds",
			Buckets:   cfg.JobDurationBuckets,
		},
		[]string{"job"},
	)

	m.registry.MustRegister(m.jobRuns)
	m.registry.MustRegister(m.jobDuration)
}

// RecordJob records one job run.
func (m *Manager) RecordJob(job, trigger, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.jobRuns.WithLabelValues(job, trigger, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
