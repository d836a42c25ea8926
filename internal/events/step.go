package events

// Event type constants for step and node events.
const (
	TypeStepDispatched = "step_dispatched"
	TypeStepSucceeded  = "step_succeeded"
	TypeStepFailed     = "step_failed"
	TypeStepExpanded   = "step_expanded"
	TypeNodeStatus     = "node_status"
)

// StepEvent carries a step lifecycle change.
type StepEvent struct {
	BaseEvent
	StepID string `json:"step_id"`
	Node   string `json:"node,omitempty"`
	Action string `json:"action,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewStepDispatchedEvent creates a dispatch event.
func NewStepDispatchedEvent(workflowID, stepID, node, action string) StepEvent {
	return StepEvent{
		BaseEvent: NewBaseEvent(TypeStepDispatched, workflowID),
		StepID:    stepID,
		Node:      node,
		Action:    action,
	}
}

// NewStepSucceededEvent creates a success event.
func NewStepSucceededEvent(workflowID, stepID string) StepEvent {
	return StepEvent{
		BaseEvent: NewBaseEvent(TypeStepSucceeded, workflowID),
		StepID:    stepID,
	}
}

// NewStepFailedEvent creates a failure event.
func NewStepFailedEvent(workflowID, stepID, errText string) StepEvent {
	return StepEvent{
		BaseEvent: NewBaseEvent(TypeStepFailed, workflowID),
		StepID:    stepID,
		Error:     errText,
	}
}

// StepExpandedEvent is emitted when a transfer request is replaced by its
// composed legs.
type StepExpandedEvent struct {
	BaseEvent
	StepID string `json:"step_id"`
	Legs   int    `json:"legs"`
}

// NewStepExpandedEvent creates an expansion event.
func NewStepExpandedEvent(workflowID, stepID string, legs int) StepExpandedEvent {
	return StepExpandedEvent{
		BaseEvent: NewBaseEvent(TypeStepExpanded, workflowID),
		StepID:    stepID,
		Legs:      legs,
	}
}

// NodeStatusEvent is emitted when a node's cached status changes.
type NodeStatusEvent struct {
	BaseEvent
	Node   string `json:"node"`
	Status string `json:"status"`
}

// NewNodeStatusEvent creates a node status change event.
func NewNodeStatusEvent(node, status string) NodeStatusEvent {
	return NodeStatusEvent{
		BaseEvent: NewBaseEvent(TypeNodeStatus, ""),
		Node:      node,
		Status:    status,
	}
}
