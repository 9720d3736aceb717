// Package config loads the microdc server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// MICRODC_* environment variables. The resulting Config is validated once and
// then handed to each component at construction; nothing reads process state
// after Load returns.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yaroslav/microdc/internal/util"
	"github.com/yaroslav/microdc/models"
)

// Profile selects environment-specific safety rules.
type Profile string

const (
	// ProfileProduction forbids destructive schema resets on populated stores
	// unless explicitly confirmed.
	ProfileProduction Profile = "production"

	// ProfileDevelopment is the default profile for local runs.
	ProfileDevelopment Profile = "development"

	// ProfileTest is used by test and bootstrap environments.
	ProfileTest Profile = "test"
)

// DefaultClusterName is the key of the cluster configured under `cluster:`.
const DefaultClusterName = "default"

// Config holds the complete server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string `yaml:"listen"`

	// Profile is production, development or test.
	Profile Profile `yaml:"profile"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`

	// Database configures the state store backend.
	Database DatabaseConfig `yaml:"database"`

	// Cluster is the default virtualization cluster.
	Cluster ClusterConfig `yaml:"cluster"`

	// Clusters holds additional named clusters that datacenters may reference.
	Clusters map[string]ClusterConfig `yaml:"clusters"`

	// Pools holds the default address and tag pools for new datacenters.
	Pools PoolConfig `yaml:"pools"`

	// Datacenters holds per-datacenter overrides keyed by datacenter name.
	Datacenters map[string]DatacenterConfig `yaml:"datacenters"`

	// Reconcile configures the reconciliation loop.
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Allocator configures identifier allocation.
	Allocator AllocatorConfig `yaml:"allocator"`

	// CORSOrigins is the list of allowed CORS origins.
	CORSOrigins []string `yaml:"cors_origins"`

	// RateLimit configures per-IP API rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is json or console.
	Format string `yaml:"format"`
}

// DatabaseConfig configures the state store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

// ClusterConfig configures access to one virtualization cluster.
type ClusterConfig struct {
	// URL is the cluster API base URL (e.g., "https://pve1.example.com:8006").
	URL string `yaml:"url"`

	// TokenID is the API token id (e.g., "microdc@pve!reconciler").
	TokenID string `yaml:"token_id"`

	// TokenSecret is the API token secret.
	TokenSecret string `yaml:"token_secret"`

	// InsecureSkipVerify disables TLS certificate validation.
	// Only for trusted internal networks.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`

	// RetryAttempts is the total number of attempts per request.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBase is the initial backoff delay.
	RetryBase time.Duration `yaml:"retry_base"`

	// RetryMax caps the backoff delay.
	RetryMax time.Duration `yaml:"retry_max"`

	// RequestsPerSecond throttles outgoing requests; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// OverlayZone is the SDN zone overlay networks are created in.
	// Empty disables overlay provisioning.
	OverlayZone string `yaml:"overlay_zone"`

	// Bridge is the raw device VLAN interfaces are stacked on (e.g., "vmbr0").
	Bridge string `yaml:"bridge"`
}

// PoolConfig holds default pool bounds.
type PoolConfig struct {
	Address models.Range `yaml:"address"`
	Tag     models.Range `yaml:"tag"`
}

// DatacenterConfig holds per-datacenter overrides.
type DatacenterConfig struct {
	// Cluster names an entry in Clusters; empty uses the default cluster.
	Cluster string `yaml:"cluster"`

	// AddressPool overrides the default address pool.
	AddressPool *models.Range `yaml:"address_pool"`

	// TagPool overrides the default tag pool.
	TagPool *models.Range `yaml:"tag_pool"`
}

// ReconcileConfig configures the reconciliation loop.
type ReconcileConfig struct {
	// Interval is the time between scheduled passes; 0 disables the loop.
	Interval time.Duration `yaml:"interval"`

	// Deadline bounds a single pass.
	Deadline time.Duration `yaml:"deadline"`
}

// AllocatorConfig configures identifier allocation.
type AllocatorConfig struct {
	// LockTimeout bounds how long a caller waits for a pool lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// RateLimitConfig configures per-IP API rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Profile:    ProfileDevelopment,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./microdc.db",
		},
		Cluster: ClusterConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryBase:     200 * time.Millisecond,
			RetryMax:      5 * time.Second,
			Bridge:        "vmbr0",
		},
		Pools: PoolConfig{
			Address: models.Range{Min: 1000, Max: 1999},
			Tag:     models.Range{Min: 100, Max: models.MaxVLANTag},
		},
		Reconcile: ReconcileConfig{
			Interval: time.Minute,
			Deadline: 45 * time.Second,
		},
		Allocator: AllocatorConfig{
			LockTimeout: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields from MICRODC_* environment variables.
func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("MICRODC_LISTEN_ADDR", c.ListenAddr)
	c.Profile = Profile(getEnv("MICRODC_PROFILE", string(c.Profile)))
	c.Log.Level = getEnv("MICRODC_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("MICRODC_LOG_FORMAT", c.Log.Format)
	c.Database.Driver = getEnv("MICRODC_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("MICRODC_DB_DSN", c.Database.DSN)
	c.Cluster.URL = getEnv("MICRODC_CLUSTER_URL", c.Cluster.URL)
	c.Cluster.TokenID = getEnv("MICRODC_CLUSTER_TOKEN_ID", c.Cluster.TokenID)
	c.Cluster.TokenSecret = getEnv("MICRODC_CLUSTER_TOKEN_SECRET", c.Cluster.TokenSecret)
	c.Cluster.OverlayZone = getEnv("MICRODC_CLUSTER_OVERLAY_ZONE", c.Cluster.OverlayZone)

	if v := os.Getenv("MICRODC_CLUSTER_INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MICRODC_CLUSTER_INSECURE %q: %w", v, err)
		}
		c.Cluster.InsecureSkipVerify = b
	}

	for key, dst := range map[string]*time.Duration{
		"MICRODC_RECONCILE_INTERVAL":    &c.Reconcile.Interval,
		"MICRODC_RECONCILE_DEADLINE":    &c.Reconcile.Deadline,
		"MICRODC_ALLOCATOR_LOCK_TIMEOUT": &c.Allocator.LockTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("MICRODC_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileProduction, ProfileDevelopment, ProfileTest:
	default:
		return fmt.Errorf("invalid profile %q (expected production, development or test)", c.Profile)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	if err := ValidatePools(c.Pools.Address, c.Pools.Tag); err != nil {
		return fmt.Errorf("default pools: %w", err)
	}

	for name, dc := range c.Datacenters {
		addr, tag := c.PoolsFor(name)
		if err := ValidatePools(addr, tag); err != nil {
			return fmt.Errorf("datacenter %q pools: %w", name, err)
		}
		if dc.Cluster != "" && dc.Cluster != DefaultClusterName {
			if _, ok := c.Clusters[dc.Cluster]; !ok {
				return fmt.Errorf("datacenter %q references unknown cluster %q", name, dc.Cluster)
			}
		}
	}

	if c.Reconcile.Deadline <= 0 {
		return fmt.Errorf("reconcile deadline must be positive")
	}
	if c.Allocator.LockTimeout <= 0 {
		return fmt.Errorf("allocator lock timeout must be positive")
	}

	return nil
}

// PoolsFor returns the address and tag pools for a datacenter name,
// applying any per-datacenter override.
func (c *Config) PoolsFor(datacenterName string) (models.Range, models.Range) {
	addr, tag := c.Pools.Address, c.Pools.Tag
	if dc, ok := c.Datacenters[datacenterName]; ok {
		if dc.AddressPool != nil {
			addr = *dc.AddressPool
		}
		if dc.TagPool != nil {
			tag = *dc.TagPool
		}
	}
	return addr, tag
}

// ClusterFor returns the cluster name and settings serving a datacenter name.
func (c *Config) ClusterFor(datacenterName string) (string, ClusterConfig) {
	name := DefaultClusterName
	if dc, ok := c.Datacenters[datacenterName]; ok && dc.Cluster != "" {
		name = dc.Cluster
	}
	cc, _ := c.ClusterNamed(name)
	return name, cc
}

// ClusterNamed returns the settings of a cluster by its configured name.
// An empty name selects the default cluster.
func (c *Config) ClusterNamed(name string) (ClusterConfig, bool) {
	if name == "" || name == DefaultClusterName {
		return c.Cluster, true
	}
	cc, ok := c.Clusters[name]
	return cc, ok
}

// ValidatePools checks that both pools are non-empty and the tag pool lies
// within the usable VLAN range.
func ValidatePools(addr, tag models.Range) error {
	if err := util.ValidateRange("address pool", addr, 0, math.MaxInt32); err != nil {
		return err
	}
	return util.ValidateRange("tag pool", tag, models.MinVLANTag, models.MaxVLANTag)
}

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
