package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeOperations counts store calls by operation and result.
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfloor_store_operations_total",
		Help: "Record store operations by operation and result",
	}, []string{"operation", "result"})

	// storeOperationDuration tracks full read-modify-write latency.
	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopfloor_store_operation_duration_seconds",
		Help:    "Record store operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"operation"})

	auditEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfloor_audit_entries_total",
		Help: "Audit log entries appended by action",
	}, []string{"action"})

	changeDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfloor_change_dispatch_total",
		Help: "Change notifications by outcome",
	}, []string{"outcome"})
)

// Result labels for ObserveStoreOp.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

func ObserveStoreOp(operation, result string, start time.Time) {
	storeOperations.WithLabelValues(operation, result).Inc()
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func ObserveAuditEntry(action string) {
	auditEntries.WithLabelValues(action).Inc()
}

// Change dispatch outcomes.
const (
	DispatchDelivered = "delivered"
	DispatchRetried   = "retried"
	DispatchDropped   = "dropped"
)

func ObserveDispatch(outcome string) {
	changeDispatch.WithLabelValues(outcome).Inc()
}
