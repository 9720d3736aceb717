package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yaroslav/microdc/internal/cluster"
	"github.com/yaroslav/microdc/models"
)

type fakeStore struct {
	mu         sync.Mutex
	datacenter *models.Datacenter
	workspaces map[string]*models.Workspace
	networks   map[string]*models.VirtualNetwork
	purged     []string

	listErr   error
	assignErr error
}

func newFakeStore(pool models.Range) *fakeStore {
	return newDatacenterStore("dc-1", "lab", pool)
}

// newDatacenterStore creates a store holding one datacenter served by clusterName.
func newDatacenterStore(id, clusterName string, pool models.Range) *fakeStore {
	return &fakeStore{
		datacenter: &models.Datacenter{
			ID:          id,
			Name:        "site-" + id,
			TagPool:     pool,
			AddressPool: models.Range{Min: 1, Max: 100},
			Cluster:     clusterName,
		},
		workspaces: make(map[string]*models.Workspace),
		networks:   make(map[string]*models.VirtualNetwork),
	}
}

func (s *fakeStore) addWorkspace(id string, address int, status models.WorkspaceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[id] = &models.Workspace{ID: id, DatacenterID: s.datacenter.ID, Address: address, Name: id, Status: models.StatusPtr(status)}
}

func (s *fakeStore) addNetwork(id, workspaceID string, tag *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networks[id] = &models.VirtualNetwork{ID: id, WorkspaceID: workspaceID, Name: id, Tag: tag}
}

func (s *fakeStore) status(id string) models.WorkspaceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return ""
	}
	return ws.StatusOrEmpty()
}

func (s *fakeStore) network(id string) models.VirtualNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.networks[id]
}

func (s *fakeStore) GetDatacenter(_ context.Context, id string) (*models.Datacenter, error) {
	if id != s.datacenter.ID {
		return nil, models.ErrDatacenterNotFound
	}
	dc := *s.datacenter
	return &dc, nil
}

func (s *fakeStore) ListWorkspaces(context.Context, string) ([]models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		out = append(out, *ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListNetworks(context.Context, string) ([]models.VirtualNetwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.VirtualNetwork, 0, len(s.networks))
	for _, n := range s.networks {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) AssignTag(_ context.Context, networkID string, tag int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return s.assignErr
	}
	n, ok := s.networks[networkID]
	if !ok || n.Tag != nil {
		return models.ErrIdentifierInUse
	}
	n.Tag = models.IntPtr(tag)
	return nil
}

func (s *fakeStore) SetOverlayID(_ context.Context, networkID, overlayID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.networks[networkID]
	if !ok {
		return models.ErrNetworkNotFound
	}
	n.OverlayID = &overlayID
	return nil
}

func (s *fakeStore) SetWorkspaceStatus(_ context.Context, workspaceID string, status models.WorkspaceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return models.ErrWorkspaceNotFound
	}
	ws.Status = models.StatusPtr(status)
	return nil
}

func (s *fakeStore) PurgeWorkspace(_ context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[workspaceID]; !ok {
		return models.ErrWorkspaceNotFound
	}
	delete(s.workspaces, workspaceID)
	for id, n := range s.networks {
		if n.WorkspaceID == workspaceID {
			delete(s.networks, id)
		}
	}
	s.purged = append(s.purged, workspaceID)
	return nil
}

type appliedCall struct {
	node   string
	tag    int
	action cluster.NetworkAction
}

type fakeCluster struct {
	mu      sync.Mutex
	nodes   []cluster.Node
	quorate bool
	// vlans holds the owner of each VLAN per node; "" is an operator VLAN.
	vlans   map[string]map[int]string
	overlay bool

	statusErr error
	// failTags makes ApplyNetworkConfig fail for these tags.
	failTags map[int]bool
	// block makes GetClusterStatus wait for the context.
	block bool
	// gate, when set, holds GetClusterStatus until it is closed.
	gate        chan struct{}
	statusCalls int

	applied  []appliedCall
	overlays []string
}

func newFakeCluster(nodes ...string) *fakeCluster {
	c := &fakeCluster{quorate: true, vlans: make(map[string]map[int]string), failTags: make(map[int]bool)}
	for _, n := range nodes {
		c.nodes = append(c.nodes, cluster.Node{Name: n, Online: true})
		c.vlans[n] = make(map[int]string)
	}
	return c
}

func (c *fakeCluster) statusCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

func (c *fakeCluster) calls() []appliedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]appliedCall(nil), c.applied...)
}

func (c *fakeCluster) GetClusterStatus(ctx context.Context) (*cluster.ClusterStatus, error) {
	c.mu.Lock()
	c.statusCalls++
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", models.ErrClusterUnreachable, ctx.Err())
		}
	}
	if c.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", models.ErrClusterUnreachable, ctx.Err())
	}
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &cluster.ClusterStatus{Name: "lab", Quorate: c.quorate, Nodes: append([]cluster.Node(nil), c.nodes...)}, nil
}

func (c *fakeCluster) GetClusterResources(context.Context) ([]cluster.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []cluster.Resource
	for _, n := range c.nodes {
		status := "online"
		if !n.Online {
			status = "offline"
		}
		out = append(out, cluster.Resource{ID: "node/" + n.Name, Type: "node", Node: n.Name, Status: status})
	}
	return out, nil
}

func (c *fakeCluster) ListNetworkConfigs(_ context.Context, node string) ([]cluster.NetworkConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []cluster.NetworkConfig
	for tag, owner := range c.vlans[node] {
		out = append(out, cluster.NetworkConfig{Iface: fmt.Sprintf("vmbr0.%d", tag), Type: "vlan", Tag: tag, Owner: owner})
	}
	return out, nil
}

func (c *fakeCluster) has(node string, tag int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.vlans[node][tag]
	return ok
}

func (c *fakeCluster) ApplyNetworkConfig(_ context.Context, node string, tag int, owner string, action cluster.NetworkAction) (*cluster.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, appliedCall{node: node, tag: tag, action: action})
	if c.failTags[tag] {
		return nil, fmt.Errorf("%w: node %s refused vlan %d", models.ErrClusterRejected, node, tag)
	}
	switch action {
	case cluster.ActionProvision:
		if _, ok := c.vlans[node][tag]; ok {
			return nil, fmt.Errorf("%w: vmbr0.%d already exists on %s", models.ErrClusterRejected, tag, node)
		}
		c.vlans[node][tag] = owner
	case cluster.ActionRemove:
		delete(c.vlans[node], tag)
	}
	return &cluster.Ack{Node: node, Tag: tag, Action: action}, nil
}

func (c *fakeCluster) CreateOverlayNetwork(_ context.Context, name string, _ int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = append(c.overlays, name)
	return name, nil
}

func (c *fakeCluster) OverlayEnabled() bool {
	return c.overlay
}

// fakeAllocator hands out tags lowest-first from a fixed range.
type fakeAllocator struct {
	mu       sync.Mutex
	pool     models.Range
	used     map[int]bool
	released []int
	err      error
}

func newFakeAllocator(pool models.Range, used ...int) *fakeAllocator {
	a := &fakeAllocator{pool: pool, used: make(map[int]bool)}
	for _, u := range used {
		a.used[u] = true
	}
	return a
}

func (a *fakeAllocator) AllocateTag(context.Context, string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	for v := a.pool.Min; v <= a.pool.Max; v++ {
		if !a.used[v] {
			a.used[v] = true
			return v, nil
		}
	}
	return 0, models.ErrPoolExhausted
}

func (a *fakeAllocator) ReleaseTag(_ context.Context, _ string, tag int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, tag)
	a.released = append(a.released, tag)
	return nil
}

func resolverFor(c ClusterClient) ClientResolver {
	return func(string) (ClusterClient, error) { return c, nil }
}

// clusterResolver resolves clients by cluster name.
func clusterResolver(clients map[string]ClusterClient) ClientResolver {
	return func(name string) (ClusterClient, error) {
		c, ok := clients[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cluster %q", models.ErrValidationFailed, name)
		}
		return c, nil
	}
}

// routedStore serves several datacenters, each backed by its own fakeStore.
type routedStore map[string]*fakeStore

func (r routedStore) GetDatacenter(ctx context.Context, id string) (*models.Datacenter, error) {
	st, ok := r[id]
	if !ok {
		return nil, models.ErrDatacenterNotFound
	}
	return st.GetDatacenter(ctx, id)
}

func (r routedStore) ListWorkspaces(ctx context.Context, datacenterID string) ([]models.Workspace, error) {
	return r[datacenterID].ListWorkspaces(ctx, datacenterID)
}

func (r routedStore) ListNetworks(ctx context.Context, datacenterID string) ([]models.VirtualNetwork, error) {
	return r[datacenterID].ListNetworks(ctx, datacenterID)
}

// each tries fn on every store until one accepts the id.
func (r routedStore) each(fn func(st *fakeStore) error) error {
	var err error
	for _, st := range r {
		if err = fn(st); err == nil {
			return nil
		}
	}
	return err
}

func (r routedStore) AssignTag(ctx context.Context, networkID string, tag int) error {
	return r.each(func(st *fakeStore) error { return st.AssignTag(ctx, networkID, tag) })
}

func (r routedStore) SetOverlayID(ctx context.Context, networkID, overlayID string) error {
	return r.each(func(st *fakeStore) error { return st.SetOverlayID(ctx, networkID, overlayID) })
}

func (r routedStore) SetWorkspaceStatus(ctx context.Context, workspaceID string, status models.WorkspaceStatus) error {
	return r.each(func(st *fakeStore) error { return st.SetWorkspaceStatus(ctx, workspaceID, status) })
}

func (r routedStore) PurgeWorkspace(ctx context.Context, workspaceID string) error {
	return r.each(func(st *fakeStore) error { return st.PurgeWorkspace(ctx, workspaceID) })
}
