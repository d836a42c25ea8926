package core

import "time"

// NodeID uniquely identifies an instrument node in the workcell.
type NodeID string

// NodeStatus represents the last-known state of an instrument node.
type NodeStatus string

const (
	NodeStatusReady   NodeStatus = "READY"
	NodeStatusBusy    NodeStatus = "BUSY"
	NodeStatusError   NodeStatus = "ERROR"
	NodeStatusPaused  NodeStatus = "PAUSED"
	NodeStatusLocked  NodeStatus = "LOCKED"
	NodeStatusUnknown NodeStatus = "UNKNOWN"
)

// Node describes one instrument driver endpoint. Nodes are polled, never
// owned: the scheduler only reads this view.
type Node struct {
	ID       NodeID   `json:"id"`
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Actions  []string `json:"actions,omitempty"`

	Status       NodeStatus `json:"status"`
	StatusAt     time.Time  `json:"status_at"`
	InfoAt       time.Time  `json:"info_at"`
	StatusDetail string     `json:"status_detail,omitempty"`
}

// IsReady reports whether the node can accept an action dispatch.
func (n *Node) IsReady() bool {
	return n.Status == NodeStatusReady
}

// SupportsAction reports whether the node declares the given action.
// An empty action list means the declaration is unknown and any action
// is allowed through to the node, which will reject what it cannot do.
func (n *Node) SupportsAction(action string) bool {
	if len(n.Actions) == 0 {
		return true
	}
	for _, a := range n.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// NodeInfo is the static description returned by a node's info endpoint.
type NodeInfo struct {
	Name    string   `json:"name"`
	Model   string   `json:"model,omitempty"`
	Version string   `json:"version,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// AdminCommand is a node-level administrative operation.
type AdminCommand string

const (
	AdminPause      AdminCommand = "pause"
	AdminResume     AdminCommand = "resume"
	AdminCancel     AdminCommand = "cancel"
	AdminSafetyStop AdminCommand = "safety_stop"
)
