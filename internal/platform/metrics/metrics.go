// Package metrics holds the Prometheus collectors shared by the progress
// service and the player core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOpDuration tracks repository latency by backend, operation and result.
	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "courseplatform",
		Name:      "progress_store_op_duration_seconds",
		Help:      "Progress repository operation latency",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"backend", "op", "result"})

	// CacheLookups counts read-through cache lookups by outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courseplatform",
		Name:      "progress_cache_lookups_total",
		Help:      "Progress cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	// ProgressWrites counts accepted PUT /progress requests by mode (sync, async).
	ProgressWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courseplatform",
		Name:      "progress_writes_total",
		Help:      "Progress writes accepted by the store service",
	}, []string{"mode"})

	// ReconcilerOps counts fetch and write-back outcomes seen by the player core.
	ReconcilerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "courseplatform",
		Name:      "reconciler_ops_total",
		Help:      "Reconciler progress fetches and write-backs by result",
	}, []string{"op", "result"})
)

// ObserveStoreOp records one repository call.
func ObserveStoreOp(backend, op string, start time.Time, err error) {
	StoreOpDuration.WithLabelValues(backend, op, result(err)).Observe(time.Since(start).Seconds())
}

// ObserveReconcilerOp records one reconciler fetch or write-back.
func ObserveReconcilerOp(op string, err error) {
	ReconcilerOps.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
