package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/store"
	"github.com/yaroslav/microdc/models"
)

type testEnv struct {
	store         *store.Store
	alloc         *allocator.Allocator
	cfg           *config.Config
	datacenters   *DatacenterService
	workspaces    *WorkspaceService
	networks      *NetworkService
	deviceConfigs *DeviceConfigService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	st, err := store.OpenMemory(ctx, config.ProfileDevelopment, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Pools.Address = models.Range{Min: 10, Max: 19}
	cfg.Pools.Tag = models.Range{Min: 100, Max: 109}

	alloc := allocator.New(NewPoolSource(st), time.Second, zap.NewNop())
	return &testEnv{
		store:         st,
		alloc:         alloc,
		cfg:           cfg,
		datacenters:   NewDatacenterService(st, alloc, cfg, zap.NewNop()),
		workspaces:    NewWorkspaceService(st, alloc, zap.NewNop()),
		networks:      NewNetworkService(st, alloc, zap.NewNop()),
		deviceConfigs: NewDeviceConfigService(st, zap.NewNop()),
	}
}

// datacenter creates a datacenter with the default pools on a cluster of
// its own, so any number of them can coexist.
func (e *testEnv) datacenter(t *testing.T, name string) *models.Datacenter {
	t.Helper()
	if e.cfg.Datacenters == nil {
		e.cfg.Datacenters = make(map[string]config.DatacenterConfig)
	}
	if _, ok := e.cfg.Datacenters[name]; !ok {
		e.cfg.Datacenters[name] = config.DatacenterConfig{Cluster: "cluster-" + name}
	}
	dc, err := e.datacenters.Create(context.Background(), &models.DatacenterCreateRequest{Name: name})
	require.NoError(t, err)
	return dc
}

func (e *testEnv) workspace(t *testing.T, datacenterID, name string) *models.Workspace {
	t.Helper()
	ws, err := e.workspaces.Create(context.Background(), datacenterID, &models.WorkspaceCreateRequest{Name: name})
	require.NoError(t, err)
	return ws
}

func (e *testEnv) network(t *testing.T, workspaceID, name string, tag *int) *models.VirtualNetwork {
	t.Helper()
	n, err := e.networks.Create(context.Background(), workspaceID, &models.VirtualNetworkCreateRequest{Name: name, Tag: tag})
	require.NoError(t, err)
	return n
}

func partialOf[T any](t *testing.T, values map[string]any) patch.Partial[T] {
	t.Helper()
	p, err := patch.FromMap[T](values)
	require.NoError(t, err)
	return p
}
