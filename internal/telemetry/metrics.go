package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request latency by method, route, and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "runwhale",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "path", "status"},
)

var DeploymentsStartedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "runwhale",
		Subsystem: "deployments",
		Name:      "started_total",
		Help:      "Total number of deployment jobs started.",
	},
	[]string{"source"},
)

var DeploymentsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "runwhale",
		Subsystem: "deployments",
		Name:      "completed_total",
		Help:      "Total number of deployment jobs that reached a terminal state.",
	},
	[]string{"source", "outcome"},
)

var DeploymentDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "runwhale",
		Subsystem: "deployments",
		Name:      "pipeline_duration_seconds",
		Help:      "Time from job pickup to terminal state in seconds.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	},
	[]string{"source"},
)

var ImageBuildFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "runwhale",
		Subsystem: "builds",
		Name:      "failures_total",
		Help:      "Total number of in-engine image build failures.",
	},
)

var RecoveryResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "runwhale",
		Subsystem: "recovery",
		Name:      "results_total",
		Help:      "Total number of boot-time recovery outcomes.",
	},
	[]string{"result"},
)

var RateLimitedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "runwhale",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by per-key rate limits.",
	},
)

// All returns every collector this package defines, for registry setup.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		DeploymentsStartedTotal,
		DeploymentsCompletedTotal,
		DeploymentDuration,
		ImageBuildFailuresTotal,
		RecoveryResultsTotal,
		RateLimitedTotal,
	}
}

// NewMetricsRegistry builds a registry holding the given collectors.
func NewMetricsRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors...)
	return reg
}
