package cluster

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yaroslav/microdc/internal/config"
)

// ClientConfig contains the configuration for creating a new cluster client.
type ClientConfig struct {
	// BaseURL is the cluster API URL (e.g., "https://pve1.example.com:8006").
	// The /api2/json prefix is added by the client.
	BaseURL string

	// TokenID is the API token id (e.g., "microdc@pve!reconciler").
	TokenID string

	// TokenSecret is the API token secret.
	TokenSecret string

	// InsecureSkipVerify disables TLS certificate validation.
	// Ignored when HTTPClient is provided.
	InsecureSkipVerify bool

	// HTTPClient is the HTTP client to use for requests.
	// Optional: if nil, a default client with reasonable timeouts will be created.
	HTTPClient *http.Client

	// RetryAttempts is the total number of attempts for a request.
	// Default: 3
	RetryAttempts int

	// RetryWaitMin is the base backoff delay.
	// Default: 200 milliseconds
	RetryWaitMin time.Duration

	// RetryWaitMax caps the backoff delay.
	// Default: 5 seconds
	RetryWaitMax time.Duration

	// Timeout is the HTTP request timeout.
	// Default: 30 seconds
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	// OverlayZone is the SDN zone overlay networks are created in.
	// Empty disables overlay provisioning.
	OverlayZone string

	// Bridge is the raw device VLAN interfaces are stacked on.
	// Default: vmbr0
	Bridge string
}

// ClientConfigFrom converts a server cluster section into a ClientConfig.
func ClientConfigFrom(cc config.ClusterConfig) ClientConfig {
	return ClientConfig{
		BaseURL:            cc.URL,
		TokenID:            cc.TokenID,
		TokenSecret:        cc.TokenSecret,
		InsecureSkipVerify: cc.InsecureSkipVerify,
		RetryAttempts:      cc.RetryAttempts,
		RetryWaitMin:       cc.RetryBase,
		RetryWaitMax:       cc.RetryMax,
		Timeout:            cc.Timeout,
		RequestsPerSecond:  cc.RequestsPerSecond,
		OverlayZone:        cc.OverlayZone,
		Bridge:             cc.Bridge,
	}
}

// Validate checks if the client configuration is valid and sets defaults.
func (c *ClientConfig) Validate() error {
	url := strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		return fmt.Errorf("%w: cluster URL is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%w: cluster URL must start with http:// or https://", ErrInvalidConfig)
	}
	c.BaseURL = strings.TrimSuffix(url, "/api2/json")

	if strings.TrimSpace(c.TokenID) == "" || strings.TrimSpace(c.TokenSecret) == "" {
		return fmt.Errorf("%w: token_id and token_secret are required", ErrInvalidConfig)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts must not be negative", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidConfig)
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = 200 * time.Millisecond
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = 5 * time.Second
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		return fmt.Errorf("%w: retry max must not be below retry base", ErrInvalidConfig)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Bridge == "" {
		c.Bridge = "vmbr0"
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: c.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion:         tls.VersionTLS12,
					InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec
				},
			},
		}
	}

	return nil
}
