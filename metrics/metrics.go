// metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts decisions by result.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "evaluations_total",
		Help:      "Total policy evaluations by final result.",
	}, []string{"result"})

	// EvaluationDuration observes the synchronous decision latency.
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arbiter",
		Name:      "evaluation_duration_seconds",
		Help:      "Latency of the synchronous decision path.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	// AuditDroppedTotal counts decision-log entries dropped under
	// backpressure. Dropped writes never fail the decision path; this
	// counter is the telemetry signal for that loss.
	AuditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "audit_dropped_total",
		Help:      "Decision log entries dropped because the audit queue was full.",
	})

	// AuditWriteFailuresTotal counts persistence failures in the audit worker.
	AuditWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "audit_write_failures_total",
		Help:      "Decision log writes that failed in the background worker.",
	})

	// AuditQueueDepth tracks the audit worker backlog.
	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter",
		Name:      "audit_queue_depth",
		Help:      "Entries currently queued for the audit worker.",
	})

	// StatsDroppedTotal counts per-policy counter increments dropped under
	// backpressure.
	StatsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "stats_dropped_total",
		Help:      "Policy usage counter updates dropped because the stats queue was full.",
	})

	// CacheRebuildsTotal counts snapshot rebuilds.
	CacheRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "cache_rebuilds_total",
		Help:      "Policy cache snapshot rebuilds.",
	})
)
