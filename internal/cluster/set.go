package cluster

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/models"
)

// Set hands out one Client per configured cluster, built on first use.
// Clients are looked up by cluster name; a datacenter records the name of
// its cluster when it is created.
type Set struct {
	cfg    *config.Config
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewSet creates a Set over the server configuration.
func NewSet(cfg *config.Config, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{cfg: cfg, logger: logger, clients: make(map[string]*Client)}
}

// For returns the client of the named cluster. An empty name selects the
// default cluster.
func (s *Set) For(clusterName string) (*Client, error) {
	if clusterName == "" {
		clusterName = config.DefaultClusterName
	}
	cc, ok := s.cfg.ClusterNamed(clusterName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown cluster %q", models.ErrValidationFailed, clusterName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[clusterName]; ok {
		return c, nil
	}

	c, err := NewClient(ClientConfigFrom(cc), s.logger.With(zap.String("cluster", clusterName)))
	if err != nil {
		return nil, fmt.Errorf("cluster %q: %w", clusterName, err)
	}
	s.clients[clusterName] = c
	return c, nil
}
