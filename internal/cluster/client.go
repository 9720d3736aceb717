// Package cluster is a typed client of the virtualization cluster API.
//
// The cluster is an external system that changes independently of microdc:
// every call is authenticated with an API token, throttled, retried on
// transport failures and 5xx responses, and strictly decoded. Callers only ever
// see the models sentinels ErrClusterUnreachable, ErrClusterRejected and
// ErrMalformedResponse.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/util"
	"github.com/yaroslav/microdc/models"
)

// Client talks to one virtualization cluster.
// It is safe for concurrent use.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	httpClient  *http.Client
	limiter     *rate.Limiter

	retryAttempts int
	retryWaitMin  time.Duration
	retryWaitMax  time.Duration

	overlayZone string
	bridge      string

	logger *zap.Logger
}

// NewClient creates a new cluster client with the given configuration.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		baseURL:       config.BaseURL,
		tokenID:       config.TokenID,
		tokenSecret:   config.TokenSecret,
		httpClient:    config.HTTPClient,
		retryAttempts: config.RetryAttempts,
		retryWaitMin:  config.RetryWaitMin,
		retryWaitMax:  config.RetryWaitMax,
		overlayZone:   config.OverlayZone,
		bridge:        config.Bridge,
		logger:        logger.With(zap.String(logging.FieldComponent, "cluster")),
	}

	if config.RequestsPerSecond > 0 {
		burst := int(config.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return client, nil
}

// OverlayEnabled reports whether an overlay zone is configured.
func (c *Client) OverlayEnabled() bool {
	return c.overlayZone != ""
}

// GetClusterStatus returns cluster membership and quorum.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//
// Returns:
//   - *ClusterStatus: cluster name, quorum flag and nodes
//   - error: ErrClusterUnreachable, ErrClusterRejected or ErrMalformedResponse
func (c *Client) GetClusterStatus(ctx context.Context) (*ClusterStatus, error) {
	const endpoint = "cluster_status"

	data, err := c.do(ctx, call{endpoint: endpoint, method: http.MethodGet, path: "/cluster/status"})
	if err != nil {
		return nil, err
	}

	var entries []wireStatusEntry
	if err := decodeList(endpoint, data, &entries); err != nil {
		return nil, err
	}

	status := &ClusterStatus{}
	for _, e := range entries {
		if e.Type == nil {
			return nil, malformed(endpoint, "status entry without type", data)
		}
		switch *e.Type {
		case "cluster":
			if e.Name != nil {
				status.Name = *e.Name
			}
			status.Quorate = bool(e.Quorate)
		case "node":
			if e.Name == nil || *e.Name == "" {
				return nil, malformed(endpoint, "node entry without name", data)
			}
			status.Nodes = append(status.Nodes, Node{
				Name:   *e.Name,
				ID:     e.ID,
				Online: bool(e.Online),
				IP:     e.IP,
			})
		}
	}

	// A standalone node reports no cluster entry and is its own quorum.
	if status.Name == "" && len(status.Nodes) == 1 {
		status.Quorate = status.Nodes[0].Online
	}

	return status, nil
}

// GetClusterResources returns the cluster resource index.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//
// Returns:
//   - []Resource: every guest, storage, node and sdn resource
//   - error: ErrClusterUnreachable, ErrClusterRejected or ErrMalformedResponse
//     when an entry lacks id, type, node or status
func (c *Client) GetClusterResources(ctx context.Context) ([]Resource, error) {
	const endpoint = "cluster_resources"

	data, err := c.do(ctx, call{endpoint: endpoint, method: http.MethodGet, path: "/cluster/resources"})
	if err != nil {
		return nil, err
	}

	var entries []wireResource
	if err := decodeList(endpoint, data, &entries); err != nil {
		return nil, err
	}

	resources := make([]Resource, 0, len(entries))
	for i, e := range entries {
		switch {
		case e.ID == nil:
			return nil, malformed(endpoint, fmt.Sprintf("resource %d without id", i), data)
		case e.Type == nil:
			return nil, malformed(endpoint, fmt.Sprintf("resource %s without type", *e.ID), data)
		case e.Node == nil:
			return nil, malformed(endpoint, fmt.Sprintf("resource %s without node", *e.ID), data)
		case e.Status == nil:
			return nil, malformed(endpoint, fmt.Sprintf("resource %s without status", *e.ID), data)
		}
		resources = append(resources, Resource{
			ID:      *e.ID,
			Type:    *e.Type,
			Node:    *e.Node,
			Status:  *e.Status,
			VMID:    int(e.VMID),
			CPU:     e.CPU,
			MaxCPU:  int(e.MaxCPU),
			Mem:     e.Mem,
			MaxMem:  e.MaxMem,
			Disk:    e.Disk,
			MaxDisk: e.MaxDisk,
		})
	}

	return resources, nil
}

// ListNetworkConfigs returns the VLAN interfaces stacked on the configured
// bridge of a node. VLANs on other devices belong to other networks.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//   - node: Cluster node name
//
// Returns:
//   - []NetworkConfig: VLAN interfaces with their tags
//   - error: ErrClusterUnreachable, ErrClusterRejected or ErrMalformedResponse
func (c *Client) ListNetworkConfigs(ctx context.Context, node string) ([]NetworkConfig, error) {
	const endpoint = "node_network_list"

	if err := util.ValidateNodeName(node); err != nil {
		return nil, err
	}

	data, err := c.do(ctx, call{
		endpoint: endpoint,
		method:   http.MethodGet,
		path:     "/nodes/" + url.PathEscape(node) + "/network",
		query:    url.Values{"type": []string{"vlan"}},
	})
	if err != nil {
		return nil, err
	}

	var entries []wireNetwork
	if err := decodeList(endpoint, data, &entries); err != nil {
		return nil, err
	}

	configs := make([]NetworkConfig, 0, len(entries))
	for _, e := range entries {
		if e.Iface == nil || e.Type == nil {
			return nil, malformed(endpoint, "network entry without iface or type", data)
		}
		if *e.Type != "vlan" || !onBridge(*e.Iface, e.RawDevice, c.bridge) {
			continue
		}

		var tag int
		if e.VLANID != nil {
			tag = int(*e.VLANID)
		} else if t, ok := tagFromIface(*e.Iface); ok {
			tag = t
		} else {
			return nil, malformed(endpoint, fmt.Sprintf("vlan %s without vlan-id", *e.Iface), data)
		}

		configs = append(configs, NetworkConfig{
			Iface:     *e.Iface,
			Type:      *e.Type,
			Tag:       tag,
			RawDevice: e.RawDevice,
			Active:    bool(e.Active),
			Owner:     ownerFromComments(e.Comments),
		})
	}

	return configs, nil
}

// ApplyNetworkConfig provisions or removes the VLAN with the given tag on a
// node, then reloads the node network configuration. Provisioned interfaces
// record owner in their comments so ListNetworkConfigs can tell them apart
// from interfaces created by other datacenters or by operators.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//   - node: Cluster node name
//   - tag: VLAN tag
//   - owner: datacenter ID the VLAN belongs to
//   - action: ActionProvision or ActionRemove
//
// Returns:
//   - *Ack: the interface touched and the reload task id
//   - error: ErrClusterUnreachable, ErrClusterRejected or ErrMalformedResponse
func (c *Client) ApplyNetworkConfig(ctx context.Context, node string, tag int, owner string, action NetworkAction) (*Ack, error) {
	if err := util.ValidateNodeName(node); err != nil {
		return nil, err
	}
	if err := util.ValidateVLANTag(tag); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: vlan owner is required", models.ErrValidationFailed)
	}

	iface := vlanIface(c.bridge, tag)
	nodePath := "/nodes/" + url.PathEscape(node) + "/network"

	switch action {
	case ActionProvision:
		_, err := c.do(ctx, call{
			endpoint: "node_network_create",
			method:   http.MethodPost,
			path:     nodePath,
			body: map[string]any{
				"iface":           iface,
				"type":            "vlan",
				"vlan-id":         tag,
				"vlan-raw-device": c.bridge,
				"autostart":       1,
				"comments":        ownerComment(owner),
			},
		})
		if err != nil {
			return nil, err
		}
	case ActionRemove:
		_, err := c.do(ctx, call{
			endpoint: "node_network_delete",
			method:   http.MethodDelete,
			path:     nodePath + "/" + url.PathEscape(iface),
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown network action %q", models.ErrValidationFailed, action)
	}

	data, err := c.do(ctx, call{endpoint: "node_network_reload", method: http.MethodPut, path: nodePath})
	if err != nil {
		return nil, err
	}

	task, err := optionalString("node_network_reload", data)
	if err != nil {
		return nil, err
	}

	c.logger.Info("network config applied",
		zap.String(logging.FieldNode, node),
		zap.Int(logging.FieldTag, tag),
		zap.String(logging.FieldAction, string(action)),
		zap.String(logging.FieldDatacenterID, owner),
	)

	return &Ack{Node: node, Tag: tag, Action: action, Iface: iface, Task: task}, nil
}

// CreateOverlayNetwork creates an overlay vnet carrying tag in the configured
// zone and applies the SDN configuration.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//   - name: vnet name (short alphanumeric)
//   - tag: VLAN tag or VXLAN id carried by the vnet
//
// Returns:
//   - string: overlay network id
//   - error: ErrValidationFailed when no overlay zone is configured, or a cluster error
func (c *Client) CreateOverlayNetwork(ctx context.Context, name string, tag int) (string, error) {
	if !c.OverlayEnabled() {
		return "", fmt.Errorf("%w: no overlay zone configured", models.ErrValidationFailed)
	}

	data, err := c.do(ctx, call{
		endpoint: "sdn_vnet_create",
		method:   http.MethodPost,
		path:     "/cluster/sdn/vnets",
		body: map[string]any{
			"vnet": name,
			"zone": c.overlayZone,
			"tag":  tag,
		},
	})
	if err != nil {
		return "", err
	}

	id, err := optionalString("sdn_vnet_create", data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = name
	}

	if _, err := c.do(ctx, call{endpoint: "sdn_apply", method: http.MethodPut, path: "/cluster/sdn"}); err != nil {
		return "", err
	}

	c.logger.Info("overlay network created",
		zap.String("overlay_id", id),
		zap.Int(logging.FieldTag, tag),
	)
	return id, nil
}

// decodeList decodes a data member that must be a JSON array.
func decodeList(endpoint string, data json.RawMessage, dest any) error {
	if len(data) == 0 || string(data) == "null" {
		return malformed(endpoint, "data is null", data)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return malformed(endpoint, err.Error(), data)
	}
	return nil
}

// optionalString decodes a data member that is either a string or null.
func optionalString(endpoint string, data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", malformed(endpoint, "expected string data", data)
	}
	return s, nil
}
