package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initLLMMetrics(cfg Config) {
	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Generative text calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	m.llmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Generative text call duration in seconds",
			Buckets:   cfg.LLMDurationBuckets,
		},
		[]string{"provider"},
	)

	m.registry.MustRegister(m.llmCalls)
	m.registry.MustRegister(m.llmDuration)
}

// RecordLLMCall records one generation call. outcome is "success" or an
// error class.
func (m *Manager) RecordLLMCall(provider, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.llmCalls.WithLabelValues(provider, outcome).Inc()
	m.llmDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
