package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/models"
)

func TestDatacenterService_CreatePools(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Datacenters = map[string]config.DatacenterConfig{
		"fra-01": {AddressPool: &models.Range{Min: 500, Max: 599}, TagPool: &models.Range{Min: 2000, Max: 2099}},
	}
	ctx := context.Background()

	tests := []struct {
		name     string
		req      models.DatacenterCreateRequest
		wantAddr models.Range
		wantTag  models.Range
	}{
		{
			name:     "configured defaults",
			req:      models.DatacenterCreateRequest{Name: "ams-01"},
			wantAddr: models.Range{Min: 10, Max: 19},
			wantTag:  models.Range{Min: 100, Max: 109},
		},
		{
			name:     "per-datacenter override",
			req:      models.DatacenterCreateRequest{Name: "fra-01"},
			wantAddr: models.Range{Min: 500, Max: 599},
			wantTag:  models.Range{Min: 2000, Max: 2099},
		},
		{
			name: "request override",
			req: models.DatacenterCreateRequest{
				Name:    "lon-01",
				TagPool: &models.Range{Min: 300, Max: 310},
			},
			wantAddr: models.Range{Min: 10, Max: 19},
			wantTag:  models.Range{Min: 300, Max: 310},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, err := env.datacenters.Create(ctx, &tt.req)
			require.NoError(t, err)
			assert.NotEmpty(t, dc.ID)
			assert.Equal(t, tt.wantAddr, dc.AddressPool)
			assert.Equal(t, tt.wantTag, dc.TagPool)

			stored, err := env.datacenters.Get(ctx, dc.ID)
			require.NoError(t, err)
			assert.Equal(t, dc.AddressPool, stored.AddressPool)
			assert.Equal(t, dc.TagPool, stored.TagPool)
		})
	}
}

func TestDatacenterService_CreateRejectsBadPools(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.datacenters.Create(context.Background(), &models.DatacenterCreateRequest{
		Name:    "bad",
		TagPool: &models.Range{Min: 1, Max: 50},
	})
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	_, err = env.datacenters.Create(context.Background(), &models.DatacenterCreateRequest{})
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestDatacenterService_CreateRejectsOverlappingTagPools(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Datacenters = map[string]config.DatacenterConfig{
		"edge-a": {Cluster: "edge"},
		"edge-b": {Cluster: "edge"},
		"core-a": {Cluster: "core"},
	}
	ctx := context.Background()

	first, err := env.datacenters.Create(ctx, &models.DatacenterCreateRequest{
		Name:    "edge-a",
		TagPool: &models.Range{Min: 100, Max: 199},
	})
	require.NoError(t, err)
	assert.Equal(t, "edge", first.Cluster)

	tests := []struct {
		name    string
		req     models.DatacenterCreateRequest
		wantErr bool
	}{
		{
			name:    "overlap on the same cluster",
			req:     models.DatacenterCreateRequest{Name: "edge-b", TagPool: &models.Range{Min: 150, Max: 250}},
			wantErr: true,
		},
		{
			name:    "pool containing the other",
			req:     models.DatacenterCreateRequest{Name: "edge-b", TagPool: &models.Range{Min: 50, Max: 300}},
			wantErr: true,
		},
		{
			name:    "shared boundary tag",
			req:     models.DatacenterCreateRequest{Name: "edge-b", TagPool: &models.Range{Min: 199, Max: 210}},
			wantErr: true,
		},
		{
			name: "same pool on another cluster",
			req:  models.DatacenterCreateRequest{Name: "core-a", TagPool: &models.Range{Min: 100, Max: 199}},
		},
		{
			name: "disjoint pool on the same cluster",
			req:  models.DatacenterCreateRequest{Name: "edge-b", TagPool: &models.Range{Min: 200, Max: 299}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, err := env.datacenters.Create(ctx, &tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidationFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, env.cfg.Datacenters[tt.req.Name].Cluster, dc.Cluster)
		})
	}

	resp, err := env.datacenters.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total, "rejected datacenters are not stored")
}

func TestDatacenterService_RenameKeepsCluster(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Clusters = map[string]config.ClusterConfig{"edge": {}}
	env.cfg.Datacenters = map[string]config.DatacenterConfig{"fra-01": {Cluster: "edge"}}
	ctx := context.Background()

	dc, err := env.datacenters.Create(ctx, &models.DatacenterCreateRequest{Name: "fra-01"})
	require.NoError(t, err)
	require.Equal(t, "edge", dc.Cluster)

	updated, err := env.datacenters.Update(ctx, dc.ID, partialOf[models.Datacenter](t, map[string]any{"name": "ams-01"}))
	require.NoError(t, err)
	assert.Equal(t, "ams-01", updated.Name)
	assert.Equal(t, "edge", updated.Cluster)

	stored, err := env.datacenters.Get(ctx, dc.ID)
	require.NoError(t, err)
	assert.Equal(t, "edge", stored.Cluster, "the stored cluster survives a rename")

	_, err = env.datacenters.Update(ctx, dc.ID, partialOf[models.Datacenter](t, map[string]any{"cluster": "default"}))
	assert.ErrorIs(t, err, models.ErrValidationFailed, "cluster is read-only")
}

func TestDatacenterService_GetNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.datacenters.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, models.ErrDatacenterNotFound)
}

func TestDatacenterService_ListAndIDs(t *testing.T) {
	env := newTestEnv(t)
	b := env.datacenter(t, "b-site")
	a := env.datacenter(t, "a-site")

	resp, err := env.datacenters.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "a-site", resp.Datacenters[0].Name)
	assert.Equal(t, "b-site", resp.Datacenters[1].Name)

	ids, err := env.datacenters.IDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestDatacenterService_Update(t *testing.T) {
	env := newTestEnv(t)
	dc := env.datacenter(t, "fra-01")
	ctx := context.Background()

	updated, err := env.datacenters.Update(ctx, dc.ID, partialOf[models.Datacenter](t, map[string]any{
		"description": "edge site",
	}))
	require.NoError(t, err)
	assert.Equal(t, "fra-01", updated.Name, "absent fields keep their value")
	assert.Equal(t, "edge site", updated.Description)

	_, err = env.datacenters.Update(ctx, dc.ID, partialOf[models.Datacenter](t, map[string]any{
		"name":     "renamed",
		"tag_pool": map[string]int{"min": 200, "max": 300},
	}))
	assert.ErrorIs(t, err, models.ErrValidationFailed, "pools are read-only")

	stored, err := env.datacenters.Get(ctx, dc.ID)
	require.NoError(t, err)
	assert.Equal(t, "fra-01", stored.Name, "rejected update changes nothing")

	_, err = env.datacenters.Update(ctx, dc.ID, partialOf[models.Datacenter](t, map[string]any{"name": ""}))
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestDatacenterService_DeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dc := env.datacenter(t, "fra-01")
	ws := env.workspace(t, dc.ID, "tenant-a")
	n := env.network(t, ws.ID, "frontend", models.IntPtr(100))
	cfg, err := env.deviceConfigs.Create(ctx, dc.ID, &models.DeviceConfigCreateRequest{Name: "tor"})
	require.NoError(t, err)

	require.NoError(t, env.datacenters.Delete(ctx, dc.ID))

	_, err = env.datacenters.Get(ctx, dc.ID)
	assert.ErrorIs(t, err, models.ErrDatacenterNotFound)
	_, err = env.workspaces.Get(ctx, ws.ID)
	assert.ErrorIs(t, err, models.ErrWorkspaceNotFound)
	_, err = env.networks.Get(ctx, n.ID)
	assert.ErrorIs(t, err, models.ErrNetworkNotFound)
	_, err = env.deviceConfigs.Get(ctx, cfg.ID)
	assert.ErrorIs(t, err, models.ErrDeviceConfigNotFound)

	assert.ErrorIs(t, env.datacenters.Delete(ctx, dc.ID), models.ErrDatacenterNotFound)
}
