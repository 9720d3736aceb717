package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AllocatedIdentifiers tracks how many values of each pool are in use.
	AllocatedIdentifiers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "microdc_allocator_allocated",
			Help: "Number of identifiers currently allocated per datacenter pool",
		},
		[]string{"datacenter_id", "pool"},
	)

	// AllocationErrors counts allocation failures by pool and reason
	// (exhausted, contended, in_use, out_of_range).
	AllocationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_allocator_errors_total",
			Help: "Total number of failed allocations",
		},
		[]string{"pool", "reason"},
	)

	// AllocatorLockWait measures time spent waiting for pool locks.
	AllocatorLockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microdc_allocator_lock_wait_seconds",
			Help:    "Time spent waiting for an allocation pool lock",
			Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"pool"},
	)
)

func registerAllocatorMetrics() error {
	return register(AllocatedIdentifiers, AllocationErrors, AllocatorLockWait)
}
