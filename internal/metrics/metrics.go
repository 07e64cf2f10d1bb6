package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cafestock"

// OperationsTotal counts inventory operations by outcome.
// Labels: operation, status
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of inventory operations",
	},
	[]string{"operation", "status"},
)

// OperationWarnings counts data-quality warnings returned alongside successful results.
var OperationWarnings = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_warnings_total",
		Help:      "Data-quality warnings reported by inventory operations",
	},
	[]string{"operation"},
)

// RowsWritten counts rows written to the tabular store per operation.
var RowsWritten = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_written_total",
		Help:      "Rows written to the tabular store",
	},
	[]string{"operation"},
)

// StoreRetries counts retried store calls.
var StoreRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_total",
		Help:      "Store calls retried after a transient failure",
	},
	[]string{"call"},
)

// NotificationDecisions counts notification guard outcomes by reason.
var NotificationDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_decisions_total",
		Help:      "Reorder notification guard decisions",
	},
	[]string{"reason"},
)

// ScheduledRuns counts daily pipeline steps by outcome.
var ScheduledRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_steps_total",
		Help:      "Daily run steps executed by the scheduler",
	},
	[]string{"step", "status"},
)

// HTTPRequestsTotal counts HTTP requests.
// Labels: method, path, status
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration observes HTTP latency.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"method", "path"},
)
