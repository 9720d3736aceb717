package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/internal/cluster"
	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/reconciler"
	"github.com/yaroslav/microdc/internal/service"
	"github.com/yaroslav/microdc/internal/store"
)

// environment is the wired object graph shared by the commands.
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	alloc  *allocator.Allocator

	datacenters   *service.DatacenterService
	workspaces    *service.WorkspaceService
	networks      *service.NetworkService
	deviceConfigs *service.DeviceConfigService
}

// loadEnvironment reads the configuration, builds the logger and opens the
// migrated state store.
func loadEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	st, err := store.Open(ctx, cfg.Database, cfg.Profile, logger)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		logger.Sync()
		return nil, err
	}

	alloc := allocator.New(service.NewPoolSource(st), cfg.Allocator.LockTimeout, logger)
	return &environment{
		cfg:           cfg,
		logger:        logger,
		store:         st,
		alloc:         alloc,
		datacenters:   service.NewDatacenterService(st, alloc, cfg, logger),
		workspaces:    service.NewWorkspaceService(st, alloc, logger),
		networks:      service.NewNetworkService(st, alloc, logger),
		deviceConfigs: service.NewDeviceConfigService(st, logger),
	}, nil
}

// reconciler builds a reconciler talking to the configured clusters.
func (e *environment) reconciler() *reconciler.Reconciler {
	clusters := cluster.NewSet(e.cfg, e.logger)
	resolve := func(clusterName string) (reconciler.ClusterClient, error) {
		c, err := clusters.For(clusterName)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	rs := &service.ReconcileStore{
		Datacenters: e.datacenters,
		Workspaces:  e.workspaces,
		Networks:    e.networks,
	}
	return reconciler.New(rs, e.alloc, resolve, e.cfg.Reconcile.Deadline, e.logger)
}

func (e *environment) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = e.logger.Sync()
}
