// Package handlers provides HTTP handlers for the microdc REST API.
//
// This package implements request handlers for health checks, datacenter,
// workspace, virtual network and device template management, entity schemas
// and on-demand reconciliation.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/metrics"
	"github.com/yaroslav/microdc/internal/util"
	"github.com/yaroslav/microdc/models"
)

// retryAfterContended is the Retry-After hint, in seconds, for contended pools.
const retryAfterContended = 1

// ErrorResponse represents a standardized error response.
//
// All API errors are returned in this format to provide consistent
// error handling for clients.
type ErrorResponse struct {
	// Error is the error code (e.g., "not_found", "pool_exhausted").
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// RequestID is the unique request ID for tracing.
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse represents a standardized success response with data.
type SuccessResponse struct {
	// Data contains the response payload.
	Data interface{} `json:"data,omitempty"`

	// Message is an optional success message.
	Message string `json:"message,omitempty"`
}

// errorMapping maps a sentinel error to its HTTP representation.
type errorMapping struct {
	err    error
	status int
	code   string
	// verbatim exposes err.Error() as the message instead of a generic text.
	verbatim bool
	message  string
}

// errorMappings is checked in order with errors.Is; the first match wins.
// Cluster sentinels come before validation so a cluster error that also
// wraps a validation failure is still reported as a gateway error.
var errorMappings = []errorMapping{
	{err: models.ErrDatacenterNotFound, status: http.StatusNotFound, code: "not_found", verbatim: true},
	{err: models.ErrWorkspaceNotFound, status: http.StatusNotFound, code: "not_found", verbatim: true},
	{err: models.ErrNetworkNotFound, status: http.StatusNotFound, code: "not_found", verbatim: true},
	{err: models.ErrDeviceConfigNotFound, status: http.StatusNotFound, code: "not_found", verbatim: true},
	{err: models.ErrNotFound, status: http.StatusNotFound, code: "not_found", message: "Resource not found"},

	{err: models.ErrClusterUnreachable, status: http.StatusBadGateway, code: "cluster_unreachable", message: "Cluster unreachable"},
	{err: models.ErrClusterRejected, status: http.StatusBadGateway, code: "cluster_rejected", message: "Cluster rejected the request"},
	{err: models.ErrMalformedResponse, status: http.StatusBadGateway, code: "malformed_response", message: "Cluster returned a malformed response"},

	{err: models.ErrValidationFailed, status: http.StatusBadRequest, code: "validation_failed", verbatim: true},
	{err: models.ErrInvalidRequest, status: http.StatusBadRequest, code: "invalid_request", verbatim: true},
	{err: models.ErrIdentifierInUse, status: http.StatusConflict, code: "identifier_in_use", verbatim: true},
	{err: models.ErrPoolExhausted, status: http.StatusInsufficientStorage, code: "pool_exhausted", verbatim: true},
	{err: models.ErrContendedAllocation, status: http.StatusServiceUnavailable, code: "contended_allocation", verbatim: true},
	{err: models.ErrReconcileInProgress, status: http.StatusConflict, code: "reconcile_in_progress", message: "Reconciliation already in progress"},
	{err: models.ErrConfirmationRequired, status: http.StatusPreconditionFailed, code: "confirmation_required", verbatim: true},
	{err: models.ErrRateLimitExceeded, status: http.StatusTooManyRequests, code: "rate_limit_exceeded", message: "Rate limit exceeded"},
}

// respondError sends a standardized error response.
//
// Parameters:
//   - c: Gin context
//   - statusCode: HTTP status code
//   - errorCode: Error code string (e.g., "not_found")
//   - message: Human-readable error message
func respondError(c *gin.Context, statusCode int, errorCode string, message string) {
	requestID := ""
	if val, exists := c.Get("request_id"); exists {
		if id, ok := val.(string); ok {
			requestID = id
		}
	}

	metrics.ObserveAPIError(c.FullPath(), errorCode)
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: requestID,
	})
}

// respondSuccess sends a standardized success response with data.
//
// Parameters:
//   - c: Gin context
//   - statusCode: HTTP status code
//   - data: Response data
func respondSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Data: data,
	})
}

// mapErrorToResponse converts an error to an HTTP response.
//
// Domain errors are matched with errors.Is against errorMappings.
// Allocation and validation errors carry their full message so callers can
// see which identifier or field was refused; cluster and internal errors get
// a generic message and are logged with the request logger.
//
// Parameters:
//   - c: Gin context
//   - err: Error from a service, the reconciler or binding
func mapErrorToResponse(c *gin.Context, err error) {
	_ = c.Error(err)

	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}

		if m.status >= http.StatusInternalServerError {
			logging.FromContext(c.Request.Context()).Warn("request failed", zap.Error(err))
		}
		if m.status == http.StatusServiceUnavailable {
			c.Header("Retry-After", strconv.Itoa(retryAfterContended))
		}

		message := m.message
		if m.verbatim {
			message = err.Error()
		}
		respondError(c, m.status, m.code, message)
		return
	}

	logging.FromContext(c.Request.Context()).Error("unhandled error", zap.Error(err))
	respondError(c, http.StatusInternalServerError, "internal_error", "An internal error occurred")
}

// bindJSON decodes the request body into req and maps binding failures to
// ErrValidationFailed. It reports whether the handler should continue.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		mapErrorToResponse(c, fmt.Errorf("%w: %v", models.ErrValidationFailed, err))
		return false
	}
	return true
}

// pathID returns the :param path parameter after checking it is a UUID.
// Malformed IDs can never exist, so they are reported as notFound.
func pathID(c *gin.Context, param string, notFound error) (string, bool) {
	id := c.Param(param)
	if err := util.ValidateUUID(id); err != nil {
		mapErrorToResponse(c, notFound)
		return "", false
	}
	return id, true
}
