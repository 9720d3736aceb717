package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/metrics"
	"github.com/yaroslav/microdc/models"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// call describes one logical cluster API request.
type call struct {
	// endpoint is the metrics and log label (e.g., "cluster_status").
	endpoint string
	method   string
	path     string
	query    url.Values
	body     any
}

// do performs a call with throttling, retries and envelope decoding.
// It returns the raw "data" member of the response, which may be JSON null.
//
// Network errors and 5xx responses are retried with exponential backoff and
// jitter; exhausting the attempts yields ErrClusterUnreachable. Any other
// non-2xx status yields ErrClusterRejected without retrying.
func (c *Client) do(ctx context.Context, cl call) (json.RawMessage, error) {
	start := time.Now()
	data, err := c.doWithRetry(ctx, cl)

	metrics.ClusterRequestDuration.WithLabelValues(cl.endpoint).Observe(time.Since(start).Seconds())
	metrics.ClusterRequestsTotal.WithLabelValues(cl.endpoint, Outcome(err)).Inc()

	if err != nil {
		c.logger.Debug("cluster call failed",
			zap.String("endpoint", cl.endpoint),
			zap.Duration(logging.FieldDuration, time.Since(start)),
			zap.Error(err),
		)
	}
	return data, err
}

func (c *Client) doWithRetry(ctx context.Context, cl call) (json.RawMessage, error) {
	var payload []byte
	if cl.body != nil {
		var err error
		payload, err = json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.ClusterRetriesTotal.WithLabelValues(cl.endpoint).Inc()

			backoff := c.calculateBackoff(attempt - 1)
			c.logger.Warn("retrying cluster call",
				zap.String("endpoint", cl.endpoint),
				zap.Int(logging.FieldAttempt, attempt+1),
				zap.Duration("backoff", backoff),
				zap.String(logging.FieldError, lastErr.Error()),
			)

			// Wait for backoff duration or until context is cancelled
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("%w: %s: %w", models.ErrClusterUnreachable, cl.endpoint, ctx.Err())
			case <-timer.C:
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %s: throttled: %w", models.ErrClusterUnreachable, cl.endpoint, err)
			}
		}

		status, body, err := c.roundTrip(ctx, cl, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", models.ErrClusterUnreachable, cl.endpoint, ctx.Err())
			}
			lastErr = err
			continue
		}

		if status >= 500 {
			lastErr = fmt.Errorf("status %d", status)
			continue
		}
		if status < 200 || status >= 300 {
			return nil, rejected(cl.endpoint, status, body)
		}

		return decodeEnvelope(cl.endpoint, body)
	}

	return nil, fmt.Errorf("%w: %s failed after %d attempts: %s",
		models.ErrClusterUnreachable, cl.endpoint, c.retryAttempts, lastErr)
}

// roundTrip sends one attempt and reads the whole body.
func (c *Client) roundTrip(ctx context.Context, cl call, payload []byte) (int, []byte, error) {
	u := c.baseURL + "/api2/json" + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := c.addAuthHeaders(req); err != nil {
		return 0, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer drainAndCloseBody(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// decodeEnvelope unwraps {"data": ...}. A body that is not a JSON object or
// that lacks the data member is malformed.
func decodeEnvelope(endpoint string, body []byte) (json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, malformed(endpoint, "response is not a JSON object", body)
	}
	data, ok := raw["data"]
	if !ok {
		return nil, malformed(endpoint, "missing data member", body)
	}
	return data, nil
}

// calculateBackoff calculates the backoff duration for a retry attempt.
// It uses exponential backoff with jitter to avoid thundering herd.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: min * (2 ^ attempt)
	backoff := float64(c.retryWaitMin) * math.Pow(2, float64(attempt))

	if backoff > float64(c.retryWaitMax) {
		backoff = float64(c.retryWaitMax)
	}

	// Jitter in [backoff/2, backoff)
	jitter := backoff/2 + rand.Float64()*backoff/2

	return time.Duration(jitter)
}

// drainAndCloseBody reads and closes the response body to ensure connection reuse.
func drainAndCloseBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
