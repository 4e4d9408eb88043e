package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initMemoryMetrics(cfg Config) {
	m.summaries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Rolling summary updates by status",
		},
		[]string{"status"},
	)

	m.summaryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "Duration of summarizing one chat into the rolling summary",
			Buckets:   cfg.LLMDurationBuckets,
		},
	)

	m.distilledEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distilled_entries_total",
			Help:      "Distilled memory entries created by tier",
		},
		[]string{"tier"},
	)

	m.distillFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distill_user_failures_total",
			Help:      "Users whose distillation pass failed",
		},
	)

	m.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Hybrid searches by the signals that contributed candidates",
		},
		[]string{"signals"},
	)

	m.searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Hybrid search duration in seconds",
			Buckets:   cfg.SearchDurationBuckets,
		},
	)

	m.searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned by hybrid search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	m.embedderAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedder_available",
			Help:      "1 when the embedding backend loaded, 0 otherwise",
		},
	)

	m.contextCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_cache_lookups_total",
			Help:      "Memory context cache lookups by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.summaries)
	m.registry.MustRegister(m.summaryDuration)
	m.registry.MustRegister(m.distilledEntries)
	m.registry.MustRegister(m.distillFailures)
	m.registry.MustRegister(m.searches)
	m.registry.MustRegister(m.searchDuration)
	m.registry.MustRegister(m.searchResults)
	m.registry.MustRegister(m.embedderAvailable)
	m.registry.MustRegister(m.contextCache)
}

// RecordSummary records one summarization attempt.
func (m *Manager) RecordSummary(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.summaries.WithLabelValues(status).Inc()
	m.summaryDuration.Observe(duration.Seconds())
}

// RecordDistilled records entries created for a tier.
func (m *Manager) RecordDistilled(tier int, created int) {
	if !m.enabled || created <= 0 {
		return
	}
	m.distilledEntries.WithLabelValues(strconv.Itoa(tier)).Add(float64(created))
}

// RecordDistillFailure records a failed per-user distillation.
func (m *Manager) RecordDistillFailure() {
	if !m.enabled {
		return
	}
	m.distillFailures.Inc()
}

// RecordSearch records a hybrid search. signals is one of hybrid, lexical,
// semantic or none.
func (m *Manager) RecordSearch(signals string, results int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.searches.WithLabelValues(signals).Inc()
	m.searchDuration.Observe(duration.Seconds())
	m.searchResults.Observe(float64(results))
}

// SetEmbedderAvailable records the embedder lifecycle outcome.
func (m *Manager) SetEmbedderAvailable(available bool) {
	if !m.enabled {
		return
	}
	if available {
		m.embedderAvailable.Set(1)
	} else {
		m.embedderAvailable.Set(0)
	}
}

// RecordContextCache records a context cache lookup.
func (m *Manager) RecordContextCache(hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.contextCache.WithLabelValues(result).Inc()
}
