package reconciler

import (
	"fmt"
	"sort"

	"github.com/yaroslav/microdc/models"
)

// ActionKind identifies a corrective step in a plan.
type ActionKind string

const (
	// ActionAllocateTag draws a tag from the pool for an untagged network.
	ActionAllocateTag ActionKind = "allocate_tag"

	// ActionCreateOverlay creates the overlay network of a tagged network.
	ActionCreateOverlay ActionKind = "create_overlay"

	// ActionProvision creates a desired VLAN on a node that lacks it.
	ActionProvision ActionKind = "provision"

	// ActionRemove deletes a VLAN from a node that nothing desires.
	ActionRemove ActionKind = "remove"

	// ActionFlag marks a workspace whose identifiers are inconsistent.
	ActionFlag ActionKind = "flag_inconsistency"

	// ActionDeallocate releases a deleting workspace's identifiers and deletes it.
	ActionDeallocate ActionKind = "deallocate"
)

// order is the apply order of action kinds.
var order = map[ActionKind]int{
	ActionAllocateTag:   0,
	ActionCreateOverlay: 1,
	ActionProvision:     2,
	ActionRemove:        3,
	ActionFlag:          4,
	ActionDeallocate:    5,
}

// Action is one step of a plan.
type Action struct {
	Kind ActionKind `json:"kind"`

	// WorkspaceID is the workspace the action is charged to.
	// Empty for removal of VLANs no workspace owns.
	WorkspaceID string `json:"workspace_id,omitempty"`

	NetworkID string `json:"network_id,omitempty"`
	Node      string `json:"node,omitempty"`
	Tag       int    `json:"tag,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionProvision, ActionRemove:
		return fmt.Sprintf("%s vlan %d on %s", a.Kind, a.Tag, a.Node)
	case ActionFlag:
		return fmt.Sprintf("%s workspace %s: %s", a.Kind, a.WorkspaceID, a.Reason)
	case ActionDeallocate:
		return fmt.Sprintf("%s workspace %s", a.Kind, a.WorkspaceID)
	default:
		return fmt.Sprintf("%s network %s", a.Kind, a.NetworkID)
	}
}

// Plan is the ordered list of actions of one pass.
type Plan struct {
	Actions []Action `json:"actions"`
}

// Count returns the number of actions of a kind.
func (p *Plan) Count(kind ActionKind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// sort orders actions by kind, keeping insertion order within a kind.
func (p *Plan) sort() {
	sort.SliceStable(p.Actions, func(i, j int) bool {
		return order[p.Actions[i].Kind] < order[p.Actions[j].Kind]
	})
}

// Snapshot is the desired and observed state of one datacenter, as fetched
// at the start of a pass.
type Snapshot struct {
	Datacenter models.Datacenter
	Workspaces []models.Workspace
	Networks   []models.VirtualNetwork

	// Nodes are the online cluster nodes VLANs are provisioned on.
	Nodes []string

	// VLANs holds the observed tags per node that this datacenter provisioned.
	VLANs map[string]map[int]bool

	// Foreign holds the observed tags per node owned by another datacenter
	// or created outside microdc. They are never removed.
	Foreign map[string]map[int]bool

	// Overlay reports whether overlay networks are provisioned.
	Overlay bool
}

// Unassigned returns the networks that need a tag before they can be provisioned.
func (s *Snapshot) Unassigned() []models.VirtualNetwork {
	deleting := s.deletingWorkspaces()
	var out []models.VirtualNetwork
	for _, n := range s.Networks {
		if n.Tag == nil && !deleting[n.WorkspaceID] {
			out = append(out, n)
		}
	}
	return out
}

func (s *Snapshot) deletingWorkspaces() map[string]bool {
	out := make(map[string]bool)
	for _, ws := range s.Workspaces {
		if ws.StatusOrEmpty() == models.WorkspaceDeleting {
			out[ws.ID] = true
		}
	}
	return out
}

// Diff computes the corrective plan for a fully resolved snapshot.
// Networks still without a tag are skipped; they are handled by allocation.
//
// Desired VLANs missing on an online node are provisioned. VLANs this
// datacenter provisioned inside its tag pool that nothing desires are
// removed; foreign VLANs and tags outside the pool are never touched.
// Workspaces sharing an address, networks sharing a tag, and networks whose
// tag is held by a foreign VLAN are flagged and not provisioned. Workspaces
// in deleting state contribute nothing to the desired set and are deallocated.
func Diff(s *Snapshot) *Plan {
	plan := &Plan{}
	pool := s.Datacenter.TagPool
	deleting := s.deletingWorkspaces()

	// Address collisions
	flagged := make(map[string]bool)
	byAddress := make(map[int][]string)
	for _, ws := range s.Workspaces {
		byAddress[ws.Address] = append(byAddress[ws.Address], ws.ID)
	}
	addresses := make([]int, 0, len(byAddress))
	for addr := range byAddress {
		addresses = append(addresses, addr)
	}
	sort.Ints(addresses)
	for _, addr := range addresses {
		ids := byAddress[addr]
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			flagged[id] = true
			plan.Actions = append(plan.Actions, Action{
				Kind:        ActionFlag,
				WorkspaceID: id,
				Reason:      fmt.Sprintf("address %d shared by %d workspaces", addr, len(ids)),
			})
		}
	}

	// Desired tags, with tag collisions and out-of-pool tags flagged
	desired := make(map[int]models.VirtualNetwork)
	owners := make(map[int]string)
	byTag := make(map[int][]models.VirtualNetwork)
	for _, n := range s.Networks {
		if n.Tag == nil {
			continue
		}
		owners[*n.Tag] = n.WorkspaceID
		if deleting[n.WorkspaceID] {
			continue
		}
		byTag[*n.Tag] = append(byTag[*n.Tag], n)
	}

	flag := func(workspaceID, reason string) {
		if flagged[workspaceID] {
			return
		}
		flagged[workspaceID] = true
		plan.Actions = append(plan.Actions, Action{Kind: ActionFlag, WorkspaceID: workspaceID, Reason: reason})
	}

	for _, n := range s.Networks {
		if n.Tag == nil || deleting[n.WorkspaceID] {
			continue
		}
		tag := *n.Tag
		switch {
		case !pool.Contains(tag):
			flag(n.WorkspaceID, fmt.Sprintf("network %s tag %d outside pool %d-%d", n.ID, tag, pool.Min, pool.Max))
		case len(byTag[tag]) > 1:
			flag(n.WorkspaceID, fmt.Sprintf("tag %d shared by %d networks", tag, len(byTag[tag])))
		default:
			desired[tag] = n
		}
	}

	// Overlays and provisioning for consistent workspaces only
	tags := make([]int, 0, len(desired))
	for tag := range desired {
		tags = append(tags, tag)
	}
	sort.Ints(tags)

	for _, tag := range tags {
		for _, node := range s.Nodes {
			if s.Foreign[node][tag] && !s.VLANs[node][tag] {
				n := desired[tag]
				flag(n.WorkspaceID, fmt.Sprintf("network %s tag %d held by a foreign vlan on %s", n.ID, tag, node))
				break
			}
		}
	}

	for _, tag := range tags {
		n := desired[tag]
		if flagged[n.WorkspaceID] {
			continue
		}
		if s.Overlay && n.OverlayID == nil {
			plan.Actions = append(plan.Actions, Action{
				Kind:        ActionCreateOverlay,
				WorkspaceID: n.WorkspaceID,
				NetworkID:   n.ID,
				Tag:         tag,
			})
		}
		for _, node := range s.Nodes {
			if s.VLANs[node][tag] {
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				Kind:        ActionProvision,
				WorkspaceID: n.WorkspaceID,
				NetworkID:   n.ID,
				Node:        node,
				Tag:         tag,
			})
		}
	}

	// Orphans inside the pool, among the VLANs this datacenter owns
	for _, node := range s.Nodes {
		observed := make([]int, 0, len(s.VLANs[node]))
		for tag := range s.VLANs[node] {
			observed = append(observed, tag)
		}
		sort.Ints(observed)

		for _, tag := range observed {
			if !pool.Contains(tag) {
				continue
			}
			// Tags held by live networks stay, including flagged ones.
			if len(byTag[tag]) > 0 {
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				Kind:        ActionRemove,
				WorkspaceID: ownerIfDeleting(owners[tag], deleting),
				Node:        node,
				Tag:         tag,
			})
		}
	}

	for _, ws := range s.Workspaces {
		if deleting[ws.ID] {
			plan.Actions = append(plan.Actions, Action{Kind: ActionDeallocate, WorkspaceID: ws.ID})
		}
	}

	plan.sort()
	return plan
}

func ownerIfDeleting(workspaceID string, deleting map[string]bool) string {
	if deleting[workspaceID] {
		return workspaceID
	}
	return ""
}
