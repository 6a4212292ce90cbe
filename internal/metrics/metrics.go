// Package metrics provides Prometheus metrics for alertd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "alertd"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Ingestion metrics
var (
	// EventsReceivedTotal counts submitted events by environment.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total events submitted for processing",
		},
		[]string{"environment"},
	)

	// EventsSuppressedTotal counts events dropped by blackout windows.
	EventsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "suppressed_total",
			Help:      "Total events suppressed by active blackout windows",
		},
		[]string{"environment"},
	)

	// EventsRejectedTotal counts events failing validation.
	EventsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "rejected_total",
			Help:      "Total events rejected by validation",
		},
	)

	// AlertsCreatedTotal counts newly created alerts.
	AlertsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total alerts created",
		},
	)

	// AlertsUpdatedTotal counts deduplicated alert updates.
	AlertsUpdatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "updated_total",
			Help:      "Total events deduplicated into existing alerts",
		},
	)

	// AlertsExpiredTotal counts alerts expired by housekeeping.
	AlertsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "expired_total",
			Help:      "Total alerts expired after their timeout elapsed",
		},
	)

	// ConflictRetriesTotal counts optimistic concurrency retries.
	ConflictRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "conflict_retries_total",
			Help:      "Total retries after concurrent-modification conflicts",
		},
	)
)

// Correlation metrics
var (
	// RuleEvalErrorsTotal counts pattern predicates that failed to evaluate.
	RuleEvalErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "rule_eval_errors_total",
			Help:      "Total pattern predicate evaluation errors (treated as non-match)",
		},
	)

	// IssuesOpen tracks currently open issues.
	IssuesOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "issues",
			Name:      "open",
			Help:      "Number of currently open issues",
		},
	)

	// IssuesCreatedTotal counts created issues.
	IssuesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issues",
			Name:      "created_total",
			Help:      "Total issues created",
		},
	)

	// IssuesClosedTotal counts closed issues.
	IssuesClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issues",
			Name:      "closed_total",
			Help:      "Total issues closed",
		},
	)
)

// Notification metrics
var (
	// ChangesDroppedTotal counts change notifications lost to slow subscribers.
	ChangesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Total change notifications dropped due to full subscriber buffers",
		},
	)
)

// Heartbeat metrics
var (
	// HeartbeatsReceivedTotal counts recorded heartbeats.
	HeartbeatsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeats",
			Name:      "received_total",
			Help:      "Total heartbeats recorded",
		},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
