package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposure is contract-only per spec §6 ("Format is left to the
// implementation"); these are the Prometheus counters/gauges/histograms that
// satisfy the named snapshot counters (requests_total, requests_by_status,
// per-target active and ewma_latency, breaker_state, sessions_count),
// grounded on internal/observability/metrics.go's promauto package-var idiom.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewaycore_requests_total",
		Help: "Total HTTP requests handled by the gateway.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatewaycore_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	TargetActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gatewaycore_target_active_requests",
		Help: "In-flight requests per upstream target.",
	}, []string{"route", "target"})

	TargetEWMALatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gatewaycore_target_ewma_latency_ms",
		Help: "EWMA latency in milliseconds per upstream target.",
	}, []string{"route", "target"})

	TargetHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gatewaycore_target_healthy",
		Help: "1 if the target's health probe reports healthy, else 0.",
	}, []string{"route", "target"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gatewaycore_breaker_state",
		Help: "Circuit breaker state per target: 0=closed, 1=half-open, 2=open.",
	}, []string{"route", "target"})

	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gatewaycore_sessions_active",
		Help: "Active sticky-session bindings per route.",
	}, []string{"route"})

	PanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatewaycore_panics_total",
		Help: "Total panics recovered by the outermost error handler.",
	})

	ClusterWorkersAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatewaycore_cluster_workers_alive",
		Help: "Number of live cluster worker processes.",
	})
)
