package cluster

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ClusterStatus is the membership view of the cluster.
type ClusterStatus struct {
	// Name is the cluster name. Empty for a standalone node.
	Name string `json:"name"`

	// Quorate reports whether the cluster currently has quorum.
	Quorate bool `json:"quorate"`

	// Nodes lists every cluster member.
	Nodes []Node `json:"nodes"`
}

// OnlineNodes returns the names of the members that are online.
func (s *ClusterStatus) OnlineNodes() []string {
	var out []string
	for _, n := range s.Nodes {
		if n.Online {
			out = append(out, n.Name)
		}
	}
	return out
}

// Node is a cluster member.
type Node struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Online bool   `json:"online"`
	IP     string `json:"ip,omitempty"`
}

// Resource is one entry of the cluster resource index (guest, storage, node, sdn zone).
type Resource struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Node    string  `json:"node"`
	Status  string  `json:"status"`
	VMID    int     `json:"vmid,omitempty"`
	CPU     float64 `json:"cpu"`
	MaxCPU  int     `json:"maxcpu"`
	Mem     int64   `json:"mem"`
	MaxMem  int64   `json:"maxmem"`
	Disk    int64   `json:"disk"`
	MaxDisk int64   `json:"maxdisk"`
}

// NetworkConfig is a VLAN interface configured on a node.
type NetworkConfig struct {
	Iface     string `json:"iface"`
	Type      string `json:"type"`
	Tag       int    `json:"tag"`
	RawDevice string `json:"raw_device"`
	Active    bool   `json:"active"`

	// Owner is the datacenter ID recorded in the interface comments when
	// microdc provisioned it. Empty for interfaces created by anyone else.
	Owner string `json:"owner,omitempty"`
}

// NetworkAction selects what ApplyNetworkConfig does with a VLAN.
type NetworkAction string

const (
	// ActionProvision creates the VLAN interface on the node.
	ActionProvision NetworkAction = "provision"

	// ActionRemove deletes the VLAN interface from the node.
	ActionRemove NetworkAction = "remove"
)

// Ack acknowledges an applied network change.
type Ack struct {
	Node   string        `json:"node"`
	Tag    int           `json:"tag"`
	Action NetworkAction `json:"action"`
	Iface  string        `json:"iface"`

	// Task is the cluster task id of the reload, if the cluster returned one.
	Task string `json:"task,omitempty"`
}

// ============================================================================
// Wire types
// ============================================================================

// flexBool accepts 0/1 numbers, booleans and their string forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "1", "true":
		*b = true
	case "0", "false", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// flexInt accepts numbers and numeric strings.
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*i = flexInt(v)
	return nil
}

type wireStatusEntry struct {
	Type    *string  `json:"type"`
	Name    *string  `json:"name"`
	ID      string   `json:"id"`
	Quorate flexBool `json:"quorate"`
	Online  flexBool `json:"online"`
	IP      string   `json:"ip"`
}

type wireResource struct {
	ID      *string `json:"id"`
	Type    *string `json:"type"`
	Node    *string `json:"node"`
	Status  *string `json:"status"`
	VMID    flexInt `json:"vmid"`
	CPU     float64 `json:"cpu"`
	MaxCPU  flexInt `json:"maxcpu"`
	Mem     int64   `json:"mem"`
	MaxMem  int64   `json:"maxmem"`
	Disk    int64   `json:"disk"`
	MaxDisk int64   `json:"maxdisk"`
}

type wireNetwork struct {
	Iface     *string  `json:"iface"`
	Type      *string  `json:"type"`
	VLANID    *flexInt `json:"vlan-id"`
	RawDevice string   `json:"vlan-raw-device"`
	Active    flexBool `json:"active"`
	Comments  string   `json:"comments"`
}

// ownerMark prefixes the owner recorded in interface comments.
const ownerMark = "microdc:"

func ownerComment(owner string) string {
	return ownerMark + owner
}

// ownerFromComments returns the owner recorded by ownerComment, or "".
func ownerFromComments(comments string) string {
	owner, ok := strings.CutPrefix(strings.TrimSpace(comments), ownerMark)
	if !ok {
		return ""
	}
	return owner
}

// onBridge reports whether a VLAN interface is stacked on bridge. The raw
// device wins over the interface name when the cluster reports it.
func onBridge(iface, rawDevice, bridge string) bool {
	if rawDevice != "" {
		return rawDevice == bridge
	}
	return strings.HasPrefix(iface, bridge+".")
}

// vlanIface is the interface name of a VLAN stacked on bridge.
func vlanIface(bridge string, tag int) string {
	return bridge + "." + strconv.Itoa(tag)
}

// tagFromIface extracts the VLAN id from an interface name like "vmbr0.120".
func tagFromIface(iface string) (int, bool) {
	i := strings.LastIndexByte(iface, '.')
	if i < 0 || i == len(iface)-1 {
		return 0, false
	}
	v, err := strconv.Atoi(iface[i+1:])
	if err != nil {
		return 0, false
	}
	return v, true
}
