// Package models provides shared data structures for the microdc control plane.
//
// This package contains the desired-state entities persisted by the state store,
// the request and response envelopes used by the REST API, the reconciliation
// result types and the error taxonomy shared by every layer. Keeping them in a
// leaf package lets the allocator, reconciler, services and handlers import them
// without creating circular dependencies.
//
// The models in this package represent:
//   - Datacenters: Physical sites that own workspaces and device templates
//   - Workspaces: Tenant-scoped units holding a datacenter-unique address
//   - VirtualNetworks: VLAN-tagged segments belonging to a workspace
//   - DeviceConfigs: Datacenter-scoped device templates
//   - Reconcile results: Outcome summaries of reconciliation passes
//
// Ownership is expressed with foreign-key style identifiers (DatacenterID,
// WorkspaceID); entities never hold pointers back to their parents.
package models
