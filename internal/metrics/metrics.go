package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edusync_session_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Cache client metrics
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "backend", "status"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edusync_session_cache_operation_duration_seconds",
			Help:    "Cache operation duration in seconds, retries included",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation", "backend"},
	)

	CacheRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_cache_retries_total",
			Help: "Total number of retried cache commands",
		},
		[]string{"command"},
	)

	// Circuit Breaker metrics
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edusync_session_cache_circuit_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	CircuitBreakerFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edusync_session_cache_circuit_breaker_failures_total",
			Help: "Total number of failures recorded by the cache circuit breaker",
		},
	)

	// Session lifecycle metrics
	SessionOpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_opens_total",
			Help: "Total number of sessions opened, by outcome",
		},
		[]string{"result"},
	)

	SessionSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_saves_total",
			Help: "Total number of session commits, by action",
		},
		[]string{"action", "status"},
	)

	SessionRegenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_regenerations_total",
			Help: "Total number of session ID regeneration attempts, by result",
		},
		[]string{"result"},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edusync_session_swept_total",
			Help: "Total number of sessions removed by the expiry sweep",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edusync_session_sessions_active",
			Help: "Number of session records seen by the last sweep",
		},
	)

	// Authentication metrics
	AuthRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edusync_session_auth_requests_total",
			Help: "Total number of authentication requests",
		},
		[]string{"provider", "status"},
	)

	AuthCallbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edusync_session_auth_callback_duration_seconds",
			Help:    "Authentication callback processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Application info
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edusync_session_build_info",
			Help: "Build information",
		},
		[]string{"version", "commit", "build_date"},
	)
)

// SetBuildInfo sets the build information metric
func SetBuildInfo(version, commit, buildDate string) {
	BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
