// Package metrics exposes Prometheus counters and gauges for the daemon's
// request, transaction, and dispatch paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the daemon's Prometheus collectors.
type Metrics struct {
	// HTTPRequestDuration measures request latency.
	// Labels: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts requests.
	// Labels: method, path, status
	HTTPRequestCounter *prometheus.CounterVec

	// EventsIngested counts POST /events by event type.
	EventsIngested *prometheus.CounterVec

	// TransactionsCompleted counts Stop events that closed out a tracked
	// transaction, labeled by whether the duration cleared the notify
	// threshold.
	TransactionsCompleted *prometheus.CounterVec

	// TransactionsPending is a gauge of in-flight transactions.
	TransactionsPending prometheus.Gauge

	// SummarizerFallback counts summaries produced by the deterministic
	// fallback chain rather than a successful LLM call, labeled by reason.
	SummarizerFallback *prometheus.CounterVec

	// NotifyDispatched counts per-channel dispatch outcomes.
	// Labels: channel (tts|discord|console), outcome (success|error)
	NotifyDispatched *prometheus.CounterVec

	// AudioQueueDepth is a gauge of the audio queue's current length.
	AudioQueueDepth prometheus.Gauge
}

// New creates and registers all collectors against Prometheus's default
// registry. Call once at daemon startup.
func New() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trakd_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trakd_http_requests_total",
				Help: "Total HTTP requests handled",
			},
			[]string{"method", "path", "status"},
		),
		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trakd_events_ingested_total",
				Help: "Total lifecycle events ingested via POST /events",
			},
			[]string{"event_type"},
		),
		TransactionsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trakd_transactions_completed_total",
				Help: "Completed transactions, labeled by whether they cleared the notify threshold",
			},
			[]string{"notified"},
		),
		TransactionsPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trakd_transactions_pending",
				Help: "Current number of in-flight tracked transactions",
			},
		),
		SummarizerFallback: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trakd_summarizer_fallback_total",
				Help: "Summaries produced by the deterministic fallback chain instead of the LLM",
			},
			[]string{"reason"},
		),
		NotifyDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trakd_notify_dispatched_total",
				Help: "Per-channel notification dispatch outcomes",
			},
			[]string{"channel", "outcome"},
		),
		AudioQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trakd_audio_queue_depth",
				Help: "Current length of the TTS audio playback queue",
			},
		),
	}
}
