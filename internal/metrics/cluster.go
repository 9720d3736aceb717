package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ClusterRequestsTotal counts cluster API calls by endpoint and outcome
	// (ok, rejected, unreachable, malformed).
	ClusterRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_cluster_requests_total",
			Help: "Total number of cluster API calls",
		},
		[]string{"endpoint", "outcome"},
	)

	// ClusterRequestDuration measures cluster API call duration including retries.
	ClusterRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microdc_cluster_request_duration_seconds",
			Help:    "Cluster API call duration in seconds, including retries",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// ClusterRetriesTotal counts retried cluster API attempts.
	ClusterRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_cluster_retries_total",
			Help: "Total number of retried cluster API attempts",
		},
		[]string{"endpoint"},
	)
)

func registerClusterMetrics() error {
	return register(ClusterRequestsTotal, ClusterRequestDuration, ClusterRetriesTotal)
}
