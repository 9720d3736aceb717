package models

import "errors"

// Common error types used throughout the microdc control plane.
// These errors provide semantic meaning and enable consistent error handling
// across the cluster client, allocator, reconciler, services and API layer.
// Callers wrap them with fmt.Errorf("%w: ...") and match with errors.Is.

var (
	// ErrNotFound indicates the requested resource does not exist.
	// HTTP equivalent: 404 Not Found
	ErrNotFound = errors.New("resource not found")

	// ErrDatacenterNotFound indicates the requested datacenter does not exist.
	// HTTP equivalent: 404 Not Found
	ErrDatacenterNotFound = errors.New("datacenter not found")

	// ErrWorkspaceNotFound indicates the requested workspace does not exist.
	// HTTP equivalent: 404 Not Found
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrNetworkNotFound indicates the requested virtual network does not exist.
	// HTTP equivalent: 404 Not Found
	ErrNetworkNotFound = errors.New("virtual network not found")

	// ErrDeviceConfigNotFound indicates the requested device configuration does not exist.
	// HTTP equivalent: 404 Not Found
	ErrDeviceConfigNotFound = errors.New("device configuration not found")

	// ErrInvalidRequest indicates the request body or parameters are invalid.
	// HTTP equivalent: 400 Bad Request
	ErrInvalidRequest = errors.New("invalid request")

	// ErrValidationFailed indicates a field failed validation. Partial updates
	// that produce this error are rejected as a whole.
	// HTTP equivalent: 400 Bad Request
	ErrValidationFailed = errors.New("validation failed")

	// ErrIdentifierInUse indicates an explicitly requested address, tag or index
	// is already held by another entity in the same scope.
	// HTTP equivalent: 409 Conflict
	ErrIdentifierInUse = errors.New("identifier already in use")

	// ErrPoolExhausted indicates a datacenter has no free value left in an
	// address or tag pool. It is a capacity error and must not be retried blindly.
	// HTTP equivalent: 507 Insufficient Storage
	ErrPoolExhausted = errors.New("allocation pool exhausted")

	// ErrContendedAllocation indicates the allocation lock for a pool could not
	// be acquired in time. The whole operation may be retried later.
	// HTTP equivalent: 503 Service Unavailable
	ErrContendedAllocation = errors.New("allocation pool is contended")

	// ErrClusterUnreachable indicates the virtualization cluster could not be
	// reached after the bounded number of retries.
	// HTTP equivalent: 502 Bad Gateway
	ErrClusterUnreachable = errors.New("cluster unreachable")

	// ErrClusterRejected indicates the cluster answered with a 4xx status
	// (bad token, malformed request). Never retried.
	// HTTP equivalent: 502 Bad Gateway
	ErrClusterRejected = errors.New("cluster rejected request")

	// ErrMalformedResponse indicates a cluster response was missing fields the
	// client depends on or could not be decoded.
	// HTTP equivalent: 502 Bad Gateway
	ErrMalformedResponse = errors.New("malformed cluster response")

	// ErrConfirmationRequired indicates a destructive store operation was
	// attempted against a populated production store without confirmation.
	// HTTP equivalent: 412 Precondition Failed
	ErrConfirmationRequired = errors.New("destructive operation requires explicit confirmation")

	// ErrStoreNotEmpty indicates a schema reset finished but left rows behind.
	// HTTP equivalent: 500 Internal Server Error
	ErrStoreNotEmpty = errors.New("store is not empty after schema reset")

	// ErrReconcileInProgress indicates a reconciliation pass for the datacenter
	// is already running and the caller chose not to wait.
	// HTTP equivalent: 409 Conflict
	ErrReconcileInProgress = errors.New("reconciliation already in progress")

	// ErrRateLimitExceeded indicates too many requests from this client.
	// HTTP equivalent: 429 Too Many Requests
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInternalError indicates an unexpected server-side error.
	// HTTP equivalent: 500 Internal Server Error
	ErrInternalError = errors.New("internal server error")

	// ErrDatabaseError indicates a database operation failed.
	// HTTP equivalent: 500 Internal Server Error
	ErrDatabaseError = errors.New("database error")
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	// Error is the human-readable error message
	Error string `json:"error"`

	// Code is an optional error code for programmatic handling
	// Examples: "NOT_FOUND", "POOL_EXHAUSTED", "VALIDATION_FAILED"
	Code string `json:"code,omitempty"`
}

// HealthResponse represents the response for health check endpoints.
type HealthResponse struct {
	// Status indicates the service health ("ok" or "degraded")
	Status string `json:"status"`

	// Timestamp is the current server time
	Timestamp string `json:"timestamp,omitempty"`
}
