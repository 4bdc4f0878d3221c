// Package metrics exposes Prometheus instrumentation for sync cycles and
// Last.fm submissions. The daemon serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync cycle metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblesync_sync_runs_total",
			Help: "Total number of sync cycles by result",
		},
		[]string{"result"}, // "ok", "fetch_error", "submit_error", "busy"
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrobblesync_sync_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LastSyncTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrobblesync_last_sync_timestamp_seconds",
			Help: "Unix time of the last completed sync cycle",
		},
	)

	PlaysFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrobblesync_plays_fetched_total",
			Help: "Total number of plays returned by the history provider",
		},
	)

	PlaysFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrobblesync_plays_filtered_total",
			Help: "Total number of plays dropped as already processed",
		},
	)

	// Scrobble outcomes
	Scrobbles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblesync_scrobbles_total",
			Help: "Total number of scrobble outcomes",
		},
		[]string{"outcome"}, // "accepted", "ignored", "failed"
	)

	LogRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrobblesync_log_records",
			Help: "Current number of local log records by status",
		},
		[]string{"status"},
	)

	// Last.fm transport
	LastfmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblesync_lastfm_requests_total",
			Help: "Total number of Last.fm API requests",
		},
		[]string{"method", "result"},
	)

	LastfmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrobblesync_lastfm_request_duration_seconds",
			Help:    "Duration of Last.fm API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrobblesync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobblesync_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
