package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RateLimitChecks counts rate limit checks by scope and result.
	RateLimitChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_ratelimit_checks_total",
			Help: "Total number of rate limit checks",
		},
		[]string{"scope", "allowed"},
	)

	// RateLimitTrackedClients tracks how many per-client limiters are held in memory.
	RateLimitTrackedClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "microdc_ratelimit_tracked_clients",
			Help: "Number of clients with an active rate limiter",
		},
		[]string{"scope"},
	)
)

func registerRateLimitMetrics() error {
	return register(RateLimitChecks, RateLimitTrackedClients)
}
