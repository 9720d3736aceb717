// Package reconciler converges the virtualization cluster onto the topology
// recorded in the State Store.
//
// A pass over one datacenter moves through Idle, Fetching, Diffing and
// Applying, or falls to Degraded when desired or observed state cannot be
// fetched or the pass deadline expires. Action failures never abort a pass:
// they mark only the workspace the action belongs to as degraded.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/cluster"
	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/metrics"
	"github.com/yaroslav/microdc/models"
)

// Store is the desired-state side of a pass.
type Store interface {
	GetDatacenter(ctx context.Context, id string) (*models.Datacenter, error)
	ListWorkspaces(ctx context.Context, datacenterID string) ([]models.Workspace, error)
	ListNetworks(ctx context.Context, datacenterID string) ([]models.VirtualNetwork, error)
	AssignTag(ctx context.Context, networkID string, tag int) error
	SetOverlayID(ctx context.Context, networkID, overlayID string) error
	SetWorkspaceStatus(ctx context.Context, workspaceID string, status models.WorkspaceStatus) error
	PurgeWorkspace(ctx context.Context, workspaceID string) error
}

// ClusterClient is the observed-state side of a pass.
type ClusterClient interface {
	GetClusterStatus(ctx context.Context) (*cluster.ClusterStatus, error)
	GetClusterResources(ctx context.Context) ([]cluster.Resource, error)
	ListNetworkConfigs(ctx context.Context, node string) ([]cluster.NetworkConfig, error)
	ApplyNetworkConfig(ctx context.Context, node string, tag int, owner string, action cluster.NetworkAction) (*cluster.Ack, error)
	CreateOverlayNetwork(ctx context.Context, name string, tag int) (string, error)
	OverlayEnabled() bool
}

// TagAllocator hands out VLAN tags.
type TagAllocator interface {
	AllocateTag(ctx context.Context, datacenterID string) (int, error)
	ReleaseTag(ctx context.Context, datacenterID string, tag int) error
}

// ClientResolver returns the client of a cluster by the name recorded on
// the datacenter.
type ClientResolver func(clusterName string) (ClusterClient, error)

// Reconciler runs single passes. It holds no per-pass state and is safe for
// concurrent use across datacenters; callers serialize passes per datacenter.
type Reconciler struct {
	store    Store
	alloc    TagAllocator
	clients  ClientResolver
	deadline time.Duration
	logger   *zap.Logger

	// For testing - allow overriding time functions
	now func() time.Time
}

// New creates a Reconciler.
//
// Parameters:
//   - store: desired state
//   - alloc: tag allocator
//   - clients: cluster client per datacenter
//   - deadline: upper bound of a single pass; zero means none
//   - logger: Zap logger
func New(store Store, alloc TagAllocator, clients ClientResolver, deadline time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		alloc:    alloc,
		clients:  clients,
		deadline: deadline,
		logger:   logger.With(zap.String(logging.FieldComponent, "reconciler")),
		now:      time.Now,
	}
}

// pass carries the bookkeeping of one run.
type pass struct {
	result   *models.ReconcileResult
	plan     *Plan
	failed   map[string]bool
	flagged  map[string]bool
	purged   map[string]bool
	logger   *zap.Logger
	snapshot *Snapshot
	client   ClusterClient
}

// Run performs one pass over a datacenter.
//
// The returned error is non-nil only when the datacenter does not exist.
// Every other failure is reported through a Degraded result.
func (r *Reconciler) Run(ctx context.Context, datacenterID string) (*models.ReconcileResult, error) {
	if r.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deadline)
		defer cancel()
	}

	p := &pass{
		result: &models.ReconcileResult{
			DatacenterID: datacenterID,
			State:        models.ReconcileFetching,
			StartedAt:    r.now().UTC(),
		},
		failed:  make(map[string]bool),
		flagged: make(map[string]bool),
		purged:  make(map[string]bool),
		logger:  r.logger.With(zap.String(logging.FieldDatacenterID, datacenterID)),
	}

	snapshot, client, err := r.fetch(ctx, datacenterID)
	if err != nil {
		if errors.Is(err, models.ErrDatacenterNotFound) {
			return nil, err
		}
		return r.finish(p, err), nil
	}
	p.snapshot, p.client = snapshot, client

	// Allocation happens before diffing so new tags are provisioned in this pass.
	allocated := r.resolve(ctx, p)

	p.result.State = models.ReconcileDiffing
	p.plan = Diff(snapshot)
	p.plan.Actions = append(allocated, p.plan.Actions...)

	p.result.State = models.ReconcileApplying
	r.apply(ctx, p)

	if err := ctx.Err(); err != nil {
		return r.finish(p, fmt.Errorf("pass deadline: %w", err)), nil
	}

	r.settle(ctx, p)
	return r.finish(p, nil), nil
}

// fetch loads desired state from the store and observed state from the cluster.
func (r *Reconciler) fetch(ctx context.Context, datacenterID string) (*Snapshot, ClusterClient, error) {
	dc, err := r.store.GetDatacenter(ctx, datacenterID)
	if err != nil {
		return nil, nil, err
	}
	workspaces, err := r.store.ListWorkspaces(ctx, datacenterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load workspaces: %w", err)
	}
	networks, err := r.store.ListNetworks(ctx, datacenterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load networks: %w", err)
	}

	client, err := r.clients(dc.Cluster)
	if err != nil {
		return nil, nil, fmt.Errorf("no client for cluster %q of datacenter %q: %w", dc.Cluster, dc.Name, err)
	}

	status, err := client.GetClusterStatus(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch cluster status: %w", err)
	}
	if !status.Quorate {
		return nil, nil, fmt.Errorf("%w: cluster %q has no quorum", models.ErrClusterUnreachable, status.Name)
	}

	resources, err := client.GetClusterResources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch cluster resources: %w", err)
	}

	nodes := usableNodes(status, resources)
	vlans := make(map[string]map[int]bool, len(nodes))
	foreign := make(map[string]map[int]bool, len(nodes))
	for _, node := range nodes {
		configs, err := client.ListNetworkConfigs(ctx, node)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch networks of node %s: %w", node, err)
		}
		owned, other := make(map[int]bool), make(map[int]bool)
		for _, c := range configs {
			if c.Owner == dc.ID {
				owned[c.Tag] = true
			} else {
				other[c.Tag] = true
			}
		}
		vlans[node], foreign[node] = owned, other
	}

	return &Snapshot{
		Datacenter: *dc,
		Workspaces: workspaces,
		Networks:   networks,
		Nodes:      nodes,
		VLANs:      vlans,
		Foreign:    foreign,
		Overlay:    client.OverlayEnabled(),
	}, client, nil
}

// usableNodes returns the online members of status that the resource index
// does not report as offline.
func usableNodes(status *cluster.ClusterStatus, resources []cluster.Resource) []string {
	offline := make(map[string]bool)
	for _, res := range resources {
		if res.Type == "node" && res.Status != "online" {
			offline[res.Node] = true
		}
	}

	var nodes []string
	for _, name := range status.OnlineNodes() {
		if !offline[name] {
			nodes = append(nodes, name)
		}
	}
	return nodes
}

// resolve allocates tags for untagged networks and records them in the
// snapshot. The allocator lock is released before anything else happens.
func (r *Reconciler) resolve(ctx context.Context, p *pass) []Action {
	dcID := p.snapshot.Datacenter.ID
	var actions []Action

	for _, n := range p.snapshot.Unassigned() {
		action := Action{Kind: ActionAllocateTag, WorkspaceID: n.WorkspaceID, NetworkID: n.ID}

		tag, err := r.alloc.AllocateTag(ctx, dcID)
		if err == nil {
			action.Tag = tag
			if err = r.store.AssignTag(ctx, n.ID, tag); err != nil {
				if rerr := r.alloc.ReleaseTag(ctx, dcID, tag); rerr != nil {
					p.logger.Warn("failed to release unassigned tag", zap.Int(logging.FieldTag, tag), zap.Error(rerr))
				}
			}
		}

		r.record(p, action, err)
		if err == nil {
			p.snapshot.setTag(n.ID, tag)
		}
		actions = append(actions, action)
	}
	return actions
}

// apply executes the planned actions in order. Allocation actions were
// already executed by resolve.
func (r *Reconciler) apply(ctx context.Context, p *pass) {
	for _, a := range p.plan.Actions {
		if ctx.Err() != nil {
			return
		}

		var err error
		switch a.Kind {
		case ActionAllocateTag:
			continue
		case ActionCreateOverlay:
			var id string
			id, err = p.client.CreateOverlayNetwork(ctx, overlayName(a.Tag), a.Tag)
			if err == nil {
				err = r.store.SetOverlayID(ctx, a.NetworkID, id)
			}
		case ActionProvision:
			_, err = p.client.ApplyNetworkConfig(ctx, a.Node, a.Tag, p.result.DatacenterID, cluster.ActionProvision)
		case ActionRemove:
			_, err = p.client.ApplyNetworkConfig(ctx, a.Node, a.Tag, p.result.DatacenterID, cluster.ActionRemove)
		case ActionFlag:
			p.flagged[a.WorkspaceID] = true
			p.logger.Warn("workspace inconsistency",
				zap.String(logging.FieldWorkspaceID, a.WorkspaceID),
				zap.String("reason", a.Reason),
			)
		case ActionDeallocate:
			if p.failed[a.WorkspaceID] {
				// VLANs still present; retried next pass.
				continue
			}
			err = r.store.PurgeWorkspace(ctx, a.WorkspaceID)
			if err == nil {
				p.purged[a.WorkspaceID] = true
			}
		}

		r.record(p, a, err)
	}
}

// record accounts an executed action in the result and metrics.
func (r *Reconciler) record(p *pass, a Action, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		p.result.Failed++
		if a.WorkspaceID != "" {
			p.failed[a.WorkspaceID] = true
		}
		p.logger.Warn("reconcile action failed",
			zap.String(logging.FieldAction, string(a.Kind)),
			zap.String(logging.FieldWorkspaceID, a.WorkspaceID),
			zap.String(logging.FieldNode, a.Node),
			zap.Int(logging.FieldTag, a.Tag),
			zap.Error(err),
		)
	} else {
		switch a.Kind {
		case ActionAllocateTag:
			p.result.Allocated++
		case ActionCreateOverlay:
			p.result.Overlays++
		case ActionProvision:
			p.result.Provisioned++
		case ActionRemove:
			p.result.Removed++
		case ActionFlag:
			p.result.Flagged++
		case ActionDeallocate:
			p.result.Deallocated++
		}
		p.logger.Debug("reconcile action applied",
			zap.String(logging.FieldAction, a.String()),
		)
	}
	metrics.ReconcileActions.WithLabelValues(string(a.Kind), outcome).Inc()
}

// settle writes workspace status back: failed or flagged workspaces become
// degraded, the rest of the workspaces that were converging become active.
func (r *Reconciler) settle(ctx context.Context, p *pass) {
	for _, ws := range p.snapshot.Workspaces {
		if p.purged[ws.ID] {
			continue
		}
		current := ws.StatusOrEmpty()
		if current == models.WorkspaceDeleting {
			continue
		}

		var next models.WorkspaceStatus
		switch {
		case p.failed[ws.ID] || p.flagged[ws.ID]:
			next = models.WorkspaceDegraded
			p.result.DegradedWorkspaces = append(p.result.DegradedWorkspaces, ws.ID)
		case current == "", current == models.WorkspaceCreated,
			current == models.WorkspaceProvisioning, current == models.WorkspaceDegraded:
			next = models.WorkspaceActive
		default:
			continue
		}
		if next == current {
			continue
		}

		if err := r.store.SetWorkspaceStatus(ctx, ws.ID, next); err != nil {
			p.logger.Warn("failed to update workspace status",
				zap.String(logging.FieldWorkspaceID, ws.ID),
				zap.String("status", string(next)),
				zap.Error(err),
			)
		}
	}
}

// finish stamps the final state, records metrics and logs the outcome.
func (r *Reconciler) finish(p *pass, err error) *models.ReconcileResult {
	res := p.result
	res.FinishedAt = r.now().UTC()

	if err != nil {
		res.State = models.ReconcileDegraded
		res.Error = err.Error()
		p.logger.Warn("reconcile pass degraded", zap.Error(err))
	} else {
		res.State = models.ReconcileIdle
		metrics.ReconcileLastSuccess.WithLabelValues(res.DatacenterID).Set(float64(res.FinishedAt.Unix()))
		p.logger.Info("reconcile pass complete",
			zap.Int("provisioned", res.Provisioned),
			zap.Int("removed", res.Removed),
			zap.Int("allocated", res.Allocated),
			zap.Int("overlays", res.Overlays),
			zap.Int("flagged", res.Flagged),
			zap.Int("deallocated", res.Deallocated),
			zap.Int("failed", res.Failed),
			zap.Duration(logging.FieldDuration, res.FinishedAt.Sub(res.StartedAt)),
		)
	}

	metrics.ReconcilePasses.WithLabelValues(string(res.State)).Inc()
	metrics.ReconcileDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	return res
}

// setTag records an allocated tag on a snapshot network.
func (s *Snapshot) setTag(networkID string, tag int) {
	for i := range s.Networks {
		if s.Networks[i].ID == networkID {
			t := tag
			s.Networks[i].Tag = &t
			return
		}
	}
}

// overlayName derives the overlay vnet name of a tag.
func overlayName(tag int) string {
	return fmt.Sprintf("mdc%d", tag)
}
