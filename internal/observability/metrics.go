package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reyada_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reyada_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	queryStatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reyada_query_statements_total",
			Help: "Compiled statements executed, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reyada_query_duration_seconds",
			Help:    "Statement execution latency by operation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
	authEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reyada_auth_events_total",
			Help: "Auth state transitions delivered to listeners.",
		},
		[]string{"event"},
	)
	storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reyada_storage_operations_total",
			Help: "Object storage operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		queryStatementsTotal,
		queryDurationSeconds,
		authEventsTotal,
		storageOperationsTotal,
	)
}

// ObserveQuery records one statement; outcome is "ok" or an error kind.
func ObserveQuery(operation, outcome string, elapsed time.Duration) {
	queryStatementsTotal.WithLabelValues(operation, outcome).Inc()
	queryDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func IncrementAuthEvent(event string) {
	authEventsTotal.WithLabelValues(event).Inc()
}

func ObserveStorage(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	storageOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
