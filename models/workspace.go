package models

import "time"

// WorkspaceStatus is the lifecycle state of a workspace.
type WorkspaceStatus string

const (
	// WorkspaceCreated is set when the workspace row is first written.
	WorkspaceCreated WorkspaceStatus = "created"

	// WorkspaceProvisioning marks a workspace whose networks are being realised.
	WorkspaceProvisioning WorkspaceStatus = "provisioning"

	// WorkspaceActive marks a workspace whose networks all exist on the cluster.
	WorkspaceActive WorkspaceStatus = "active"

	// WorkspaceSuspended is operator-controlled; the reconciler leaves it alone.
	WorkspaceSuspended WorkspaceStatus = "suspended"

	// WorkspaceDeleting asks the reconciler to tear down the workspace's
	// networks and then release its identifiers and delete it.
	WorkspaceDeleting WorkspaceStatus = "deleting"

	// WorkspaceDegraded is set by the reconciler when a corrective action for
	// the workspace failed after retries.
	WorkspaceDegraded WorkspaceStatus = "degraded"
)

// Workspace represents a tenant-scoped unit inside a datacenter.
// Its address is unique within the datacenter and drawn from the datacenter's
// address pool; it is never reused while the workspace exists.
type Workspace struct {
	// ID is the unique identifier for this workspace (UUID v4 format)
	ID string `json:"id" patch:"readonly"`

	// DatacenterID is the UUID of the owning datacenter
	DatacenterID string `json:"datacenter_id" patch:"readonly"`

	// Address is the datacenter-unique numeric network address
	Address int `json:"address" binding:"gte=0"`

	// Name is the human-readable workspace name
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Status is the lifecycle state; nil means unknown.
	// Deleting is entered through delete and degraded only by the reconciler.
	Status *WorkspaceStatus `json:"status" binding:"omitempty,oneof=created provisioning active suspended"`

	// CreatedAt is the timestamp when this workspace was created
	CreatedAt time.Time `json:"created_at" patch:"readonly"`

	// UpdatedAt is the timestamp of the last modification
	UpdatedAt time.Time `json:"updated_at" patch:"readonly"`
}

// StatusOrEmpty returns the workspace status, or "" when unset.
func (w *Workspace) StatusOrEmpty() WorkspaceStatus {
	if w.Status == nil {
		return ""
	}
	return *w.Status
}

// WorkspaceCreateRequest represents the request body for creating a workspace.
type WorkspaceCreateRequest struct {
	// Name is the desired workspace name (required)
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Address requests a specific address; omitted means lowest free
	Address *int `json:"address,omitempty" binding:"omitempty,gte=0"`
}

// WorkspaceListResponse represents the response for listing workspaces.
type WorkspaceListResponse struct {
	// Workspaces is the list of workspaces in the datacenter
	Workspaces []Workspace `json:"workspaces"`

	// Total is the total number of workspaces
	Total int `json:"total"`
}

// StatusPtr returns a pointer to s, for building workspaces in code and tests.
func StatusPtr(s WorkspaceStatus) *WorkspaceStatus {
	return &s
}
