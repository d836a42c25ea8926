package core

import (
	"fmt"
	"time"
)

// StepID uniquely identifies a step within a workflow run.
type StepID string

// StepStatus represents the current state of a step.
type StepStatus string

const (
	StepStatusQueued    StepStatus = "QUEUED"
	StepStatusReady     StepStatus = "READY"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusCancelled StepStatus = "CANCELLED"
)

// MaxResultErrorLen caps the error text persisted with a step result so
// verbose instrument tracebacks cannot blow up storage or logs.
const MaxResultErrorLen = 2048

// TransferAction is the reserved action name that expands into a composite
// transfer workflow before dispatch.
const TransferAction = "transfer"

// StepDefinition is one entry of a workflow template. Location and file
// values are symbolic at submission time and resolved to concrete
// representations at dispatch time.
type StepDefinition struct {
	Name      string                 `json:"name"`
	Node      string                 `json:"node"`
	Action    string                 `json:"action"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Locations map[string]LocationID  `json:"locations,omitempty"`
	Files     map[string]string      `json:"files,omitempty"`

	// Conditions gate dispatch; all must hold.
	Conditions []Condition `json:"conditions,omitempty"`

	// Locks lists resource ids this step needs exclusive access to.
	Locks []string `json:"locks,omitempty"`
}

// StepResult is the outcome reported by a node for one action.
type StepResult struct {
	Status StepStatus             `json:"status"`
	Data   map[string]interface{} `json:"data,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Truncate caps the result's error text at MaxResultErrorLen.
func (r *StepResult) Truncate() {
	if len(r.Error) > MaxResultErrorLen {
		r.Error = r.Error[:MaxResultErrorLen]
	}
}

// Terminal reports whether the result status is terminal.
func (r *StepResult) Terminal() bool {
	return r.Status == StepStatusSucceeded ||
		r.Status == StepStatusFailed ||
		r.Status == StepStatusCancelled
}

// Step is one atomic node-targeted action within a workflow run.
type Step struct {
	ID         StepID                 `json:"id"`
	Definition StepDefinition         `json:"definition"`
	Status     StepStatus             `json:"status"`
	ActionID   string                 `json:"action_id,omitempty"` // node-side handle
	Args       map[string]interface{} `json:"args,omitempty"`      // resolved at dispatch
	Result     *StepResult            `json:"result,omitempty"`
	Retries    int                    `json:"retries"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	EndedAt    *time.Time             `json:"ended_at,omitempty"`
}

// NewStep creates a queued step from a definition.
func NewStep(id StepID, def StepDefinition) *Step {
	return &Step{
		ID:         id,
		Definition: def,
		Status:     StepStatusQueued,
	}
}

// IsTerminal reports whether the step is in a terminal state.
func (s *Step) IsTerminal() bool {
	return s.Status == StepStatusSucceeded ||
		s.Status == StepStatusFailed ||
		s.Status == StepStatusCancelled
}

// IsTransfer reports whether the step requests a material transfer that
// must be expanded by the planner before dispatch.
func (s *Step) IsTransfer() bool {
	return s.Definition.Action == TransferAction
}

// MarkReady transitions QUEUED -> READY.
func (s *Step) MarkReady() error {
	if s.Status != StepStatusQueued {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot ready step in %s state", s.Status))
	}
	s.Status = StepStatusReady
	return nil
}

// MarkRunning transitions READY -> RUNNING and records the dispatch.
func (s *Step) MarkRunning(actionID string, resolved map[string]interface{}) error {
	if s.Status != StepStatusReady {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot start step in %s state", s.Status))
	}
	s.Status = StepStatusRunning
	s.ActionID = actionID
	s.Args = resolved
	now := time.Now()
	s.StartedAt = &now
	return nil
}

// MarkSucceeded transitions RUNNING -> SUCCEEDED.
func (s *Step) MarkSucceeded(result *StepResult) error {
	if s.Status != StepStatusRunning {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot complete step in %s state", s.Status))
	}
	if result != nil {
		result.Truncate()
	}
	s.Status = StepStatusSucceeded
	s.Result = result
	now := time.Now()
	s.EndedAt = &now
	return nil
}

// MarkFailed transitions RUNNING or QUEUED -> FAILED. Queued steps can fail
// directly when their failure is permanent (for example no transfer path).
func (s *Step) MarkFailed(errText string) error {
	if s.IsTerminal() {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot fail step in %s state", s.Status))
	}
	if len(errText) > MaxResultErrorLen {
		errText = errText[:MaxResultErrorLen]
	}
	s.Status = StepStatusFailed
	s.Result = &StepResult{Status: StepStatusFailed, Error: errText}
	now := time.Now()
	s.EndedAt = &now
	return nil
}

// MarkCancelled transitions any non-terminal state -> CANCELLED.
func (s *Step) MarkCancelled() error {
	if s.IsTerminal() {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot cancel step in %s state", s.Status))
	}
	s.Status = StepStatusCancelled
	now := time.Now()
	s.EndedAt = &now
	return nil
}

// Duration returns how long the step has been (or was) running.
func (s *Step) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(*s.StartedAt)
}

// Validate checks step definition invariants.
func (d *StepDefinition) Validate() error {
	if d.Action == "" {
		return ErrValidation("STEP_ACTION_REQUIRED", "step action cannot be empty")
	}
	if d.Node == "" && d.Action != TransferAction {
		return ErrValidation("STEP_NODE_REQUIRED", "step node cannot be empty")
	}
	return nil
}
