// Package metrics holds the Prometheus collectors for the approval service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_transitions_total",
			Help: "Committed approval state transitions",
		},
		[]string{"entity_type", "action"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "approval_operation_duration_seconds",
			Help:    "Duration of approval engine operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "outcome"},
	)
)

// RecordTransition counts one committed transition.
func RecordTransition(entityType, action string) {
	transitionsTotal.WithLabelValues(entityType, action).Inc()
}

// ObserveOperation records how long an operation took. outcome is "ok" or
// the error code the operation failed with.
func ObserveOperation(operation, outcome string, started time.Time) {
	operationDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}
