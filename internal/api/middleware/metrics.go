package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yaroslav/microdc/internal/metrics"
)

// MetricsMiddleware creates a middleware that collects Prometheus metrics for HTTP requests.
//
// Requests are labelled with the route template, never the raw path, so
// datacenter and workspace IDs do not become label values.
//
// Returns:
//   - Gin middleware handler function
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()

		c.Next()

		metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), c.Writer.Size(), time.Since(start))
	}
}
