// Package logging provides structured logging utilities for the microdc server.
package logging

// Standard field names for consistent logging across the application.
const (
	// FieldDatacenterID is the unique identifier for a datacenter.
	FieldDatacenterID = "datacenter_id"

	// FieldWorkspaceID is the unique identifier for a workspace.
	FieldWorkspaceID = "workspace_id"

	// FieldNetworkID is the unique identifier for a virtual network.
	FieldNetworkID = "network_id"

	// FieldAddress is a workspace address.
	FieldAddress = "address"

	// FieldTag is a VLAN tag.
	FieldTag = "tag"

	// FieldNode is a cluster node name.
	FieldNode = "node"

	// FieldAction is a reconciliation action kind.
	FieldAction = "action"

	// FieldAttempt is the 1-based attempt number of a retried call.
	FieldAttempt = "attempt"

	// FieldState is a reconciliation state.
	FieldState = "state"

	// FieldRequestID is a unique identifier for each HTTP request.
	FieldRequestID = "request_id"

	// FieldDuration is the duration of an operation.
	FieldDuration = "duration"

	// FieldStatusCode is the HTTP status code of a response.
	FieldStatusCode = "status_code"

	// FieldMethod is the HTTP method of a request.
	FieldMethod = "method"

	// FieldPath is the URL path of an HTTP request.
	FieldPath = "path"

	// FieldRemoteAddr is the client's remote address.
	FieldRemoteAddr = "remote_addr"

	// FieldUserAgent is the client's user agent string.
	FieldUserAgent = "user_agent"

	// FieldError is the error message or description.
	FieldError = "error"

	// FieldComponent identifies the component generating the log.
	FieldComponent = "component"
)
