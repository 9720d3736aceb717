package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yaroslav/microdc/internal/metrics"
)

// Rate limit scopes, used as the metrics label.
const (
	ScopeIP        = "ip"
	ScopeReconcile = "reconcile"
)

// RateLimiter implements token bucket rate limiting.
//
// This struct manages rate limiters for different identifiers (client IPs,
// datacenter IDs) with periodic cleanup of idle limiters.
type RateLimiter struct {
	scope    string
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
//
// Parameters:
//   - scope: Metrics label for this limiter (ScopeIP, ScopeReconcile)
//   - rps: Requests per second allowed per identifier
//   - burst: Burst size (number of requests that can be made in quick succession)
//   - cleanup: How often to drop idle limiters (e.g., 1 minute)
//
// Returns:
//   - Configured RateLimiter; call Stop to end the cleanup loop
func NewRateLimiter(scope string, rps float64, burst int, cleanup time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		scope:    scope,
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		cleanup:  cleanup,
		stop:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// getLimiter gets or creates a rate limiter for the given identifier.
func (rl *RateLimiter) getLimiter(identifier string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[identifier]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[identifier] = limiter
		metrics.RateLimitTrackedClients.WithLabelValues(rl.scope).Set(float64(len(rl.limiters)))
	}

	return limiter
}

// cleanupLoop periodically removes limiters whose bucket has refilled.
// A full bucket means the identifier has been idle, so dropping it loses nothing.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for identifier, limiter := range rl.limiters {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, identifier)
		}
	}
	metrics.RateLimitTrackedClients.WithLabelValues(rl.scope).Set(float64(len(rl.limiters)))
}

// allow checks if a request from the given identifier should be allowed.
// When it is not, retryAfter is the whole number of seconds until a token is free.
func (rl *RateLimiter) allow(identifier string) (allowed bool, retryAfter int) {
	limiter := rl.getLimiter(identifier)

	r := limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		metrics.RateLimitChecks.WithLabelValues(rl.scope, "true").Inc()
		return true, 0
	}
	r.Cancel()

	metrics.RateLimitChecks.WithLabelValues(rl.scope, "false").Inc()
	return false, int(math.Max(1, math.Ceil(delay.Seconds())))
}

// Middleware returns a handler limiting requests by the identifier key extracts.
// Requests for which key returns "" are not limited.
func (rl *RateLimiter) Middleware(key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := key(c)
		if identifier == "" {
			c.Next()
			return
		}

		if ok, retryAfter := rl.allow(identifier); !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate_limit_exceeded",
				"message":    "Rate limit exceeded",
				"request_id": GetRequestID(c),
			})
			return
		}

		c.Next()
	}
}

// RateLimitByIP creates middleware that rate limits requests by client IP address.
//
// Parameters:
//   - limiter: Limiter created with ScopeIP
//
// Returns:
//   - Gin middleware handler function
//
// Example:
//
//	limiter := NewRateLimiter(ScopeIP, 10.0, 20, time.Minute)
//	defer limiter.Stop()
//	router.Use(RateLimitByIP(limiter)) // 10 req/s, burst of 20
func RateLimitByIP(limiter *RateLimiter) gin.HandlerFunc {
	return limiter.Middleware(func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RateLimitByDatacenter limits requests per datacenter ID path parameter.
// It guards on-demand reconciliation, where each request can start a full pass.
func RateLimitByDatacenter(limiter *RateLimiter) gin.HandlerFunc {
	return limiter.Middleware(func(c *gin.Context) string {
		return c.Param("id")
	})
}
