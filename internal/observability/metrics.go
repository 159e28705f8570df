package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuwallet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menuwallet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuwallet_operations_total",
			Help: "Total number of wallet and plan operations",
		},
		[]string{"operation", "status"},
	)

	OperationAmountCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuwallet_operation_amount_cents_total",
			Help: "Absolute cents moved by successful wallet operations",
		},
		[]string{"operation"},
	)

	PlanSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuwallet_plan_sync_total",
			Help: "Plan status reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuwallet_sweep_runs_total",
			Help: "Expiry sweep runs by result",
		},
		[]string{"result"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordOperation(operation, status string, amountCents int64) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	if amountCents < 0 {
		amountCents = -amountCents
	}
	if amountCents > 0 {
		OperationAmountCents.WithLabelValues(operation).Add(float64(amountCents))
	}
}

func RecordPlanSync(outcome string) {
	PlanSyncTotal.WithLabelValues(outcome).Inc()
}

func RecordSweep(result string) {
	SweepRunsTotal.WithLabelValues(result).Inc()
}
