package models

import "time"

// ReconcileState is the state of a datacenter's reconciliation state machine.
type ReconcileState string

const (
	// ReconcileIdle means no pass is running; the last pass (if any) succeeded.
	ReconcileIdle ReconcileState = "Idle"

	// ReconcileFetching means desired and observed state are being loaded.
	ReconcileFetching ReconcileState = "Fetching"

	// ReconcileDiffing means the plan is being computed.
	ReconcileDiffing ReconcileState = "Diffing"

	// ReconcileApplying means plan actions are being executed.
	ReconcileApplying ReconcileState = "Applying"

	// ReconcileDegraded means the fetch step failed or the pass deadline expired.
	// The pass is retried on the next scheduled invocation.
	ReconcileDegraded ReconcileState = "Degraded"
)

// ReconcileResult summarizes one reconciliation pass over a datacenter.
type ReconcileResult struct {
	// DatacenterID is the UUID of the reconciled datacenter
	DatacenterID string `json:"datacenter_id"`

	// State is Idle after a completed pass or Degraded after a failed fetch
	State ReconcileState `json:"state"`

	// Provisioned is the number of VLAN configurations created on the cluster
	Provisioned int `json:"provisioned"`

	// Removed is the number of orphaned VLAN configurations removed
	Removed int `json:"removed"`

	// Flagged is the number of workspaces flagged as inconsistent
	Flagged int `json:"flagged"`

	// Allocated is the number of VLAN tags assigned to unassigned networks
	Allocated int `json:"allocated"`

	// Overlays is the number of overlay networks created
	Overlays int `json:"overlays"`

	// Deallocated is the number of deleting workspaces whose identifiers were released
	Deallocated int `json:"deallocated"`

	// Failed is the number of actions that failed after retries
	Failed int `json:"failed"`

	// DegradedWorkspaces lists workspaces marked degraded during this pass
	DegradedWorkspaces []string `json:"degraded_workspaces,omitempty"`

	// Error describes why the pass degraded, if it did
	Error string `json:"error,omitempty"`

	// StartedAt is when the pass began
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the pass ended
	FinishedAt time.Time `json:"finished_at"`
}
