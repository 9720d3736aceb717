package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ReconcilePasses counts reconciliation passes by final state.
	ReconcilePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_reconcile_passes_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"state"},
	)

	// ReconcileDuration measures reconciliation pass duration.
	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "microdc_reconcile_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// ReconcileActions counts executed plan actions by kind and result.
	ReconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_reconcile_actions_total",
			Help: "Total number of reconciliation actions executed",
		},
		[]string{"action", "result"},
	)

	// ReconcileLastSuccess tracks the unix time of the last Idle pass per datacenter.
	ReconcileLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "microdc_reconcile_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful reconciliation pass",
		},
		[]string{"datacenter_id"},
	)
)

func registerReconcileMetrics() error {
	return register(ReconcilePasses, ReconcileDuration, ReconcileActions, ReconcileLastSuccess)
}
