package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UnmatchedRoute labels requests that matched no route, so arbitrary paths
// never become label values.
const UnmatchedRoute = "unmatched"

var (
	// HTTPRequestsTotal counts API requests by method, route template and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures API request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "microdc_http_request_duration_seconds",
			Help: "API request duration in seconds",
			// Reconcile triggers wait for a full pass, hence the long tail.
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	// HTTPResponseSize measures API response size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microdc_http_response_size_bytes",
			Help:    "API response size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsInFlight tracks requests being served.
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "microdc_http_requests_in_flight",
			Help: "Number of API requests currently being served",
		},
	)

	// APIErrors counts error envelopes by route template and error code,
	// e.g. validation_failed or cluster_unreachable.
	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microdc_api_errors_total",
			Help: "Total number of API error responses by error code",
		},
		[]string{"route", "code"},
	)
)

// RouteLabel returns the label value of a route template. Requests that
// matched no route share UnmatchedRoute.
func RouteLabel(route string) string {
	if route == "" {
		return UnmatchedRoute
	}
	return route
}

// ObserveRequest records one served API request. A negative size means no
// body was written and is not observed.
func ObserveRequest(method, route string, status, size int, elapsed time.Duration) {
	route = RouteLabel(route)
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	if size >= 0 {
		HTTPResponseSize.WithLabelValues(method, route).Observe(float64(size))
	}
}

// ObserveAPIError records an error envelope sent on route.
func ObserveAPIError(route, code string) {
	APIErrors.WithLabelValues(RouteLabel(route), code).Inc()
}

func registerHTTPMetrics() error {
	return register(HTTPRequestsTotal, HTTPRequestDuration, HTTPResponseSize, HTTPRequestsInFlight, APIErrors)
}
