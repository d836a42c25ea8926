package events

import "time"

// Event type constants for workflow events.
const (
	TypeWorkflowSubmitted = "workflow_submitted"
	TypeWorkflowStarted   = "workflow_started"
	TypeWorkflowCompleted = "workflow_completed"
	TypeWorkflowFailed    = "workflow_failed"
	TypeWorkflowPaused    = "workflow_paused"
	TypeWorkflowResumed   = "workflow_resumed"
	TypeWorkflowCancelled = "workflow_cancelled"
)

// WorkflowSubmittedEvent is emitted when a run is accepted.
type WorkflowSubmittedEvent struct {
	BaseEvent
	Name  string `json:"name"`
	Steps int    `json:"steps"`
}

// NewWorkflowSubmittedEvent creates a new workflow submitted event.
func NewWorkflowSubmittedEvent(workflowID, name string, steps int) WorkflowSubmittedEvent {
	return WorkflowSubmittedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowSubmitted, workflowID),
		Name:      name,
		Steps:     steps,
	}
}

// WorkflowStartedEvent is emitted on first step dispatch.
type WorkflowStartedEvent struct {
	BaseEvent
}

// NewWorkflowStartedEvent creates a new workflow started event.
func NewWorkflowStartedEvent(workflowID string) WorkflowStartedEvent {
	return WorkflowStartedEvent{BaseEvent: NewBaseEvent(TypeWorkflowStarted, workflowID)}
}

// WorkflowCompletedEvent is emitted when all steps succeed.
type WorkflowCompletedEvent struct {
	BaseEvent
	Duration time.Duration `json:"duration"`
}

// NewWorkflowCompletedEvent creates a new workflow completed event.
func NewWorkflowCompletedEvent(workflowID string, duration time.Duration) WorkflowCompletedEvent {
	return WorkflowCompletedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowCompleted, workflowID),
		Duration:  duration,
	}
}

// WorkflowFailedEvent is emitted when a step failure halts the run.
type WorkflowFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// NewWorkflowFailedEvent creates a new workflow failed event.
func NewWorkflowFailedEvent(workflowID, errText string) WorkflowFailedEvent {
	return WorkflowFailedEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowFailed, workflowID),
		Error:     errText,
	}
}

// WorkflowControlEvent is emitted on pause, resume and cancel.
type WorkflowControlEvent struct {
	BaseEvent
}

// NewWorkflowPausedEvent creates a pause event.
func NewWorkflowPausedEvent(workflowID string) WorkflowControlEvent {
	return WorkflowControlEvent{BaseEvent: NewBaseEvent(TypeWorkflowPaused, workflowID)}
}

// NewWorkflowResumedEvent creates a resume event.
func NewWorkflowResumedEvent(workflowID string) WorkflowControlEvent {
	return WorkflowControlEvent{BaseEvent: NewBaseEvent(TypeWorkflowResumed, workflowID)}
}

// NewWorkflowCancelledEvent creates a cancel event.
func NewWorkflowCancelledEvent(workflowID string) WorkflowControlEvent {
	return WorkflowControlEvent{BaseEvent: NewBaseEvent(TypeWorkflowCancelled, workflowID)}
}
