package cluster

import (
	"errors"
	"fmt"

	"github.com/yaroslav/microdc/models"
)

// Client configuration errors. Errors returned by cluster calls wrap the
// models sentinels (ErrClusterUnreachable, ErrClusterRejected,
// ErrMalformedResponse) instead.
var (
	// ErrInvalidConfig indicates the client configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid cluster client configuration")

	// ErrMissingAuth indicates the API token was not configured.
	ErrMissingAuth = errors.New("missing cluster API token")
)

// maxSnippet bounds the raw payload carried inside an error.
const maxSnippet = 256

// snippet returns the body truncated to maxSnippet bytes.
func snippet(body []byte) string {
	if len(body) <= maxSnippet {
		return string(body)
	}
	return string(body[:maxSnippet]) + "...(truncated)"
}

func malformed(endpoint, reason string, body []byte) error {
	return fmt.Errorf("%w: %s: %s (payload: %q)", models.ErrMalformedResponse, endpoint, reason, snippet(body))
}

func rejected(endpoint string, status int, body []byte) error {
	return fmt.Errorf("%w: %s: status %d: %s", models.ErrClusterRejected, endpoint, status, snippet(body))
}

// Outcome classifies an error returned by the client for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrClusterRejected):
		return "rejected"
	case errors.Is(err, models.ErrMalformedResponse):
		return "malformed"
	default:
		return "unreachable"
	}
}
