package models

import "time"

// Range is an inclusive integer range used for address and VLAN tag pools.
type Range struct {
	// Min is the lowest value in the range
	Min int `json:"min" yaml:"min"`

	// Max is the highest value in the range
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Size returns the number of values in the range, or 0 for an inverted range.
func (r Range) Size() int {
	if r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min + 1
}

// Datacenter represents a physical site subdivided into tenant workspaces.
// A datacenter owns its workspaces and device templates; deleting it cascades
// to both. Each datacenter carries its own address and VLAN tag pools, copied
// from configuration when the datacenter is created.
type Datacenter struct {
	// ID is the unique identifier for this datacenter (UUID v4 format)
	ID string `json:"id" patch:"readonly"`

	// Name is the human-readable datacenter name (e.g., "fra-edge-01")
	// Maximum length: 255 characters
	// Expected to be unique, but not enforced by storage
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Description is free-form operator text
	Description string `json:"description" binding:"max=1024"`

	// AddressPool bounds the workspace addresses handed out in this datacenter
	AddressPool Range `json:"address_pool" patch:"readonly"`

	// TagPool bounds the VLAN tags handed out in this datacenter
	// Tags are a shared physical resource, so uniqueness is datacenter-wide
	TagPool Range `json:"tag_pool" patch:"readonly"`

	// Cluster is the name of the virtualization cluster serving this
	// datacenter, resolved from configuration at creation time.
	// Datacenters on one cluster never share tags, so their tag pools are disjoint.
	Cluster string `json:"cluster" patch:"readonly"`

	// CreatedAt is the timestamp when this datacenter was created
	CreatedAt time.Time `json:"created_at" patch:"readonly"`

	// UpdatedAt is the timestamp of the last modification
	UpdatedAt time.Time `json:"updated_at" patch:"readonly"`
}

// DatacenterCreateRequest represents the request body for creating a datacenter.
type DatacenterCreateRequest struct {
	// Name is the desired datacenter name (required)
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Description is optional operator text
	Description string `json:"description" binding:"max=1024"`

	// AddressPool overrides the configured address pool (optional)
	AddressPool *Range `json:"address_pool,omitempty"`

	// TagPool overrides the configured VLAN tag pool (optional)
	TagPool *Range `json:"tag_pool,omitempty"`
}

// DatacenterListResponse represents the response for listing datacenters.
type DatacenterListResponse struct {
	// Datacenters is the list of datacenters
	Datacenters []Datacenter `json:"datacenters"`

	// Total is the total number of datacenters
	Total int `json:"total"`
}

// DeviceConfig is a datacenter-scoped device template. The payload is stored
// verbatim and never interpreted by the control plane.
type DeviceConfig struct {
	// ID is the unique identifier for this template (UUID v4 format)
	ID string `json:"id" patch:"readonly"`

	// DatacenterID is the UUID of the owning datacenter
	DatacenterID string `json:"datacenter_id" patch:"readonly"`

	// Name is the template name
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Payload is the template body as JSON text
	Payload string `json:"payload"`

	// CreatedAt is the timestamp when this template was created
	CreatedAt time.Time `json:"created_at" patch:"readonly"`

	// UpdatedAt is the timestamp of the last modification
	UpdatedAt time.Time `json:"updated_at" patch:"readonly"`
}

// DeviceConfigCreateRequest represents the request body for creating a device template.
type DeviceConfigCreateRequest struct {
	// Name is the template name (required)
	Name string `json:"name" binding:"required,min=1,max=255"`

	// Payload is the template body as JSON text
	Payload string `json:"payload"`
}

// DeviceConfigListResponse represents the response for listing device templates.
type DeviceConfigListResponse struct {
	DeviceConfigs []DeviceConfig `json:"device_configs"`
	Total         int            `json:"total"`
}
