// Package metrics provides Prometheus metrics for forage-preview.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forage_preview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forage_preview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Fetch metrics
	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forage_preview_fetch_requests_total",
			Help: "Total requests made to the repository host",
		},
		[]string{"op", "status"},
	)

	fetchNodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forage_preview_fetch_node_failures_total",
			Help: "Tree nodes kept without content or children after a failed fetch",
		},
	)

	// Cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forage_preview_cache_lookups_total",
			Help: "Tree cache lookups",
		},
		[]string{"result"},
	)

	// Mount metrics
	mountEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forage_preview_mount_entries_total",
			Help: "Manifest entries mounted into sandboxes",
		},
		[]string{"kind", "status"},
	)

	scaffoldFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forage_preview_scaffold_fallbacks_total",
			Help: "Sessions that mounted the fallback scaffold instead of the repository",
		},
	)

	// Process metrics
	processExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forage_preview_process_exits_total",
			Help: "Sandbox process exits by command and outcome",
		},
		[]string{"command", "status"},
	)

	// Session metrics
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forage_preview_sessions_active",
			Help: "Number of sessions not yet closed",
		},
	)

	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forage_preview_session_transitions_total",
			Help: "Session status transitions",
		},
		[]string{"status"},
	)

	timeToReady = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forage_preview_time_to_ready_seconds",
			Help:    "Time from session start to a bound preview address",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordFetch records one request to the repository host.
func RecordFetch(op string, err error) {
	fetchRequestsTotal.WithLabelValues(op, status(err)).Inc()
}

// RecordFetchFailure records a tree node kept without its payload.
func RecordFetchFailure() {
	fetchNodeFailures.Inc()
}

// RecordCacheLookup records a tree cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordMount records one mount call.
func RecordMount(kind string, err error) {
	mountEntriesTotal.WithLabelValues(kind, status(err)).Inc()
}

// RecordScaffoldFallback records a scaffold substitution.
func RecordScaffoldFallback() {
	scaffoldFallbacks.Inc()
}

// RecordProcessExit records a process exit code.
func RecordProcessExit(command string, exitCode int) {
	result := "ok"
	if exitCode != 0 {
		result = "nonzero"
	}
	processExitsTotal.WithLabelValues(command, result).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func SessionClosed() {
	sessionsActive.Dec()
}

// RecordSessionStatus records a session entering status.
func RecordSessionStatus(status string) {
	sessionTransitions.WithLabelValues(status).Inc()
}

// RecordTimeToReady records how long a session took to bind its preview.
func RecordTimeToReady(d time.Duration) {
	timeToReady.Observe(d.Seconds())
}
