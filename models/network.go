package models

import "time"

const (
	// MinVLANTag is the lowest usable VLAN tag; 0 and 1 are reserved.
	MinVLANTag = 2

	// MaxVLANTag is the highest usable VLAN tag; 4095 is reserved.
	MaxVLANTag = 4094
)

// VirtualNetwork represents a VLAN-tagged network segment owned by a workspace.
// The tag is unique across the whole datacenter, not just the workspace,
// because VLAN tags are a shared physical resource.
type VirtualNetwork struct {
	// ID is the unique identifier for this network (UUID v4 format)
	ID string `json:"id" patch:"readonly"`

	// WorkspaceID is the UUID of the owning workspace
	WorkspaceID string `json:"workspace_id" patch:"readonly"`

	// Index is the slot of this network inside its workspace (unique per workspace)
	Index int `json:"index" binding:"gte=0"`

	// Tag is the VLAN identifier; nil until the allocator assigns one
	Tag *int `json:"tag" binding:"omitempty,gte=2,lte=4094"`

	// OverlayID is the overlay mesh network identifier, set by the reconciler
	// once the overlay network exists
	OverlayID *string `json:"overlay_id,omitempty" patch:"readonly"`

	// Name is the human-readable network name
	Name string `json:"name" binding:"required,min=1,max=255"`

	// CreatedAt is the timestamp when this network was created
	CreatedAt time.Time `json:"created_at" patch:"readonly"`

	// UpdatedAt is the timestamp of the last modification
	UpdatedAt time.Time `json:"updated_at" patch:"readonly"`
}

// HasTag reports whether the network has an allocated VLAN tag.
func (n *VirtualNetwork) HasTag() bool {
	return n.Tag != nil
}

// VirtualNetworkCreateRequest represents the request body for creating a network.
type VirtualNetworkCreateRequest struct {
	// Name is the desired network name (required)
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Index requests a slot; omitted means the next free slot in the workspace
	Index *int `json:"index,omitempty" binding:"omitempty,gte=0"`

	// Tag requests a specific VLAN tag; omitted leaves the network unassigned
	// until the reconciler allocates one
	Tag *int `json:"tag,omitempty" binding:"omitempty,gte=2,lte=4094"`
}

// VirtualNetworkListResponse represents the response for listing networks.
type VirtualNetworkListResponse struct {
	// Networks is the list of networks in the workspace
	Networks []VirtualNetwork `json:"networks"`

	// Total is the total number of networks
	Total int `json:"total"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
