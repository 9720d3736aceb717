package service

import (
	"context"

	"github.com/yaroslav/microdc/models"
)

// ReconcileStore exposes the services as the reconciler's view of desired state.
type ReconcileStore struct {
	Datacenters *DatacenterService
	Workspaces  *WorkspaceService
	Networks    *NetworkService
}

// GetDatacenter returns a datacenter by ID.
func (s *ReconcileStore) GetDatacenter(ctx context.Context, id string) (*models.Datacenter, error) {
	return s.Datacenters.Get(ctx, id)
}

// ListWorkspaces returns every workspace of a datacenter.
func (s *ReconcileStore) ListWorkspaces(ctx context.Context, datacenterID string) ([]models.Workspace, error) {
	return s.Workspaces.ListByDatacenter(ctx, datacenterID)
}

// ListNetworks returns every virtual network of a datacenter.
func (s *ReconcileStore) ListNetworks(ctx context.Context, datacenterID string) ([]models.VirtualNetwork, error) {
	return s.Networks.ListByDatacenter(ctx, datacenterID)
}

// AssignTag stores an allocated tag on an untagged network.
func (s *ReconcileStore) AssignTag(ctx context.Context, networkID string, tag int) error {
	return s.Networks.AssignTag(ctx, networkID, tag)
}

// SetOverlayID records a provisioned overlay network.
func (s *ReconcileStore) SetOverlayID(ctx context.Context, networkID, overlayID string) error {
	return s.Networks.SetOverlayID(ctx, networkID, overlayID)
}

// SetWorkspaceStatus writes back a workspace lifecycle state.
func (s *ReconcileStore) SetWorkspaceStatus(ctx context.Context, workspaceID string, status models.WorkspaceStatus) error {
	return s.Workspaces.SetStatus(ctx, workspaceID, status)
}

// PurgeWorkspace deletes a workspace and releases its identifiers.
func (s *ReconcileStore) PurgeWorkspace(ctx context.Context, workspaceID string) error {
	return s.Workspaces.Purge(ctx, workspaceID)
}
