// Package middleware provides HTTP middleware for the microdc REST API.
//
// This package implements request logging, metrics, rate limiting and CORS
// handling for all API requests.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied request IDs.
const maxRequestIDLength = 64

// RequestLogger creates a middleware that logs all HTTP requests using structured logging.
//
// This middleware:
// - Reuses the caller's X-Request-ID or generates a new one
// - Creates a request-scoped logger with standard fields
// - Stores logger in both Gin and request context
// - Logs request start and completion with duration
// - Adds the datacenter ID for datacenter-scoped routes
//
// Parameters:
//   - logger: Zap logger instance
//
// Returns:
//   - Gin middleware handler function
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := requestIDFrom(c)
		c.Header(HeaderRequestID, requestID)

		start := time.Now()

		requestLogger := logger.With(
			zap.String(logging.FieldRequestID, requestID),
			zap.String(logging.FieldMethod, c.Request.Method),
			zap.String(logging.FieldPath, c.Request.URL.Path),
			zap.String(logging.FieldRemoteAddr, c.ClientIP()),
			zap.String(logging.FieldUserAgent, c.Request.UserAgent()),
		)
		if dcID := extractDatacenterID(c); dcID != "" {
			requestLogger = requestLogger.With(zap.String(logging.FieldDatacenterID, dcID))
		}

		c.Set("logger", requestLogger)
		c.Set("request_id", requestID)

		// Store in request context for services and the reconciler
		ctx := logging.WithLogger(c.Request.Context(), requestLogger)
		c.Request = c.Request.WithContext(ctx)

		requestLogger.Debug("request started")

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int(logging.FieldStatusCode, status),
			zap.Duration(logging.FieldDuration, duration),
			zap.Int("response_size", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String(logging.FieldError, c.Errors.String()))
		}

		switch {
		case status >= 500:
			requestLogger.Error("request completed with server error", fields...)
		case status >= 400:
			requestLogger.Warn("request completed with client error", fields...)
		default:
			requestLogger.Info("request completed", fields...)
		}
	}
}

// requestIDFrom returns the caller's request ID when it is usable, otherwise a new UUID.
func requestIDFrom(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if id == "" || len(id) > maxRequestIDLength || strings.ContainsAny(id, "\r\n") {
		return uuid.New().String()
	}
	return id
}

// extractDatacenterID returns the :id parameter of /api/v1/datacenters/:id routes.
func extractDatacenterID(c *gin.Context) string {
	if !strings.HasPrefix(c.FullPath(), "/api/v1/datacenters/:id") {
		return ""
	}
	return c.Param("id")
}

// GetLogger retrieves the request-scoped logger from Gin context.
// Returns a no-op logger if not found.
func GetLogger(c *gin.Context) *zap.Logger {
	if logger, exists := c.Get("logger"); exists {
		if l, ok := logger.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}

// GetRequestID retrieves the request ID from Gin context.
// Returns empty string if not found.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
