package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransportFailures tracks classified transport failures.
	TransportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_transport_failures_total",
			Help: "Total number of transport failures by operation and category",
		},
		[]string{"operation", "category"},
	)

	// ModeChanges tracks connection mode transitions.
	ModeChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_mode_changes_total",
			Help: "Total number of connection mode transitions",
		},
		[]string{"from", "to", "reason"},
	)

	// ReconnectAttempts tracks scheduled reconnect attempts.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livefeed_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		},
	)

	// DataUpdates tracks payloads delivered to subscribers.
	DataUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_data_updates_total",
			Help: "Total number of data updates delivered",
		},
		[]string{"transport"},
	)

	// PollLatency tracks pull transport fetch latency.
	PollLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livefeed_poll_latency_seconds",
			Help:    "Pull transport fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BreakerState exposes the circuit breaker state per component
	// (0 = closed, 1 = half-open, 2 = open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livefeed_breaker_state",
			Help: "Circuit breaker state per component (0 closed, 1 half-open, 2 open)",
		},
		[]string{"component"},
	)

	// ErrorsClassified tracks every classified error by category and severity.
	ErrorsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_errors_classified_total",
			Help: "Total number of classified errors",
		},
		[]string{"category", "severity"},
	)
)
