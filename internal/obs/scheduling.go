package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	schedulingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmcal_scheduling_operations_total",
			Help: "Coordinator operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	schedulingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmcal_scheduling_operation_duration_seconds",
			Help:    "Coordinator operation latency, store round trips included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	schedulingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmcal_scheduling_conflicts_total",
			Help: "Conflicts detected, split by whether they were overridden.",
		},
		[]string{"op", "overridden"},
	)

	schedulingRollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crmcal_scheduling_rollbacks_total",
		Help: "Optimistic moves restored after a failed confirmation.",
	})
)

func schedulingCollectors() []prometheus.Collector {
	return []prometheus.Collector{schedulingOps, schedulingDuration, schedulingConflicts, schedulingRollbacks}
}

// SchedulingMetrics reports coordinator activity to Prometheus.
type SchedulingMetrics struct{}

func (SchedulingMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	schedulingOps.WithLabelValues(op, outcome).Inc()
	schedulingDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (SchedulingMetrics) ObserveConflict(op string, overridden bool) {
	label := "false"
	if overridden {
		label = "true"
	}
	schedulingConflicts.WithLabelValues(op, label).Inc()
}

func (SchedulingMetrics) ObserveRollback() {
	schedulingRollbacks.Inc()
}
