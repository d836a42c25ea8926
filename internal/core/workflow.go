package core

import (
	"fmt"
	"time"
)

// WorkflowID uniquely identifies a workflow run.
type WorkflowID string

// WorkflowStatus represents the current state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusQueued    WorkflowStatus = "QUEUED"
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusPaused    WorkflowStatus = "PAUSED"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// WorkflowDefinition is an immutable ordered template of steps.
type WorkflowDefinition struct {
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Steps      []StepDefinition       `json:"steps"`
}

// Validate checks definition invariants.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return ErrValidation("WORKFLOW_NAME_REQUIRED", "workflow name cannot be empty")
	}
	if len(d.Steps) == 0 {
		return ErrValidation("WORKFLOW_EMPTY", "workflow must have at least one step")
	}
	for i := range d.Steps {
		if err := d.Steps[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OwnerContext records provenance for a run. Informational only.
type OwnerContext struct {
	ExperimentID string `json:"experiment_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// Workflow is one run of a WorkflowDefinition.
type Workflow struct {
	ID         WorkflowID         `json:"id"`
	Definition WorkflowDefinition `json:"definition"`
	Status     WorkflowStatus     `json:"status"`
	Steps      []*Step            `json:"steps"`
	Owner      OwnerContext       `json:"owner,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
}

// NewWorkflow creates a queued run from a definition, one queued step per
// step definition.
func NewWorkflow(id WorkflowID, def WorkflowDefinition, owner OwnerContext) *Workflow {
	wf := &Workflow{
		ID:         id,
		Definition: def,
		Status:     WorkflowStatusQueued,
		Owner:      owner,
		CreatedAt:  time.Now(),
	}
	for i, sd := range def.Steps {
		wf.Steps = append(wf.Steps, NewStep(StepID(fmt.Sprintf("%s-%d", id, i)), sd))
	}
	return wf
}

// IsTerminal reports whether the run is in a terminal state.
func (w *Workflow) IsTerminal() bool {
	return w.Status == WorkflowStatusCompleted ||
		w.Status == WorkflowStatusFailed ||
		w.Status == WorkflowStatusCancelled
}

// IsSchedulable reports whether the scheduler should consider this run.
func (w *Workflow) IsSchedulable() bool {
	return w.Status == WorkflowStatusQueued || w.Status == WorkflowStatusRunning
}

// CurrentStep returns the first non-terminal step, or nil when all steps
// are terminal. Steps run strictly in definition order.
func (w *Workflow) CurrentStep() *Step {
	for _, s := range w.Steps {
		if !s.IsTerminal() {
			return s
		}
	}
	return nil
}

// StepByID returns the step with the given id.
func (w *Workflow) StepByID(id StepID) (*Step, bool) {
	for _, s := range w.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// MarkRunning transitions QUEUED -> RUNNING on first dispatch.
func (w *Workflow) MarkRunning() error {
	if w.Status != WorkflowStatusQueued {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot start workflow in %s state", w.Status))
	}
	w.Status = WorkflowStatusRunning
	now := time.Now()
	w.StartedAt = &now
	return nil
}

// MarkCompleted transitions RUNNING -> COMPLETED.
func (w *Workflow) MarkCompleted() error {
	if w.Status != WorkflowStatusRunning {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot complete workflow in %s state", w.Status))
	}
	w.Status = WorkflowStatusCompleted
	now := time.Now()
	w.EndedAt = &now
	return nil
}

// MarkFailed sets a terminal failure. Valid from any non-terminal state:
// a queued workflow can fail before its first dispatch (for example when
// transfer expansion finds no path).
func (w *Workflow) MarkFailed(errText string) error {
	if w.IsTerminal() {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot fail workflow in %s state", w.Status))
	}
	if len(errText) > MaxResultErrorLen {
		errText = errText[:MaxResultErrorLen]
	}
	w.Status = WorkflowStatusFailed
	w.Error = errText
	now := time.Now()
	w.EndedAt = &now
	return nil
}

// MarkPaused transitions QUEUED or RUNNING -> PAUSED.
func (w *Workflow) MarkPaused() error {
	if w.Status != WorkflowStatusQueued && w.Status != WorkflowStatusRunning {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot pause workflow in %s state", w.Status))
	}
	w.Status = WorkflowStatusPaused
	return nil
}

// MarkResumed transitions PAUSED -> RUNNING.
func (w *Workflow) MarkResumed() error {
	if w.Status != WorkflowStatusPaused {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot resume workflow in %s state", w.Status))
	}
	w.Status = WorkflowStatusRunning
	return nil
}

// MarkCancelled sets a terminal cancellation from any non-terminal state.
// Cancellation is effective immediately; the node-side abort is advisory.
func (w *Workflow) MarkCancelled() error {
	if w.IsTerminal() {
		return ErrState("BAD_TRANSITION", fmt.Sprintf("cannot cancel workflow in %s state", w.Status))
	}
	w.Status = WorkflowStatusCancelled
	now := time.Now()
	w.EndedAt = &now
	for _, s := range w.Steps {
		if !s.IsTerminal() {
			_ = s.MarkCancelled()
		}
	}
	return nil
}

// ExpandStep replaces the step at index i with the given replacement steps,
// preserving order. Used to splice a composed transfer sub-workflow in
// place of the transfer request that produced it.
func (w *Workflow) ExpandStep(id StepID, replacements []*Step) error {
	for i, s := range w.Steps {
		if s.ID != id {
			continue
		}
		if s.IsTerminal() || s.Status == StepStatusRunning {
			return ErrState("BAD_EXPANSION", fmt.Sprintf("cannot expand step in %s state", s.Status))
		}
		expanded := make([]*Step, 0, len(w.Steps)-1+len(replacements))
		expanded = append(expanded, w.Steps[:i]...)
		expanded = append(expanded, replacements...)
		expanded = append(expanded, w.Steps[i+1:]...)
		w.Steps = expanded
		return nil
	}
	return ErrNotFound("step", string(id))
}

// Summary is the compact listing view of a run.
type Summary struct {
	ID        WorkflowID     `json:"id"`
	Name      string         `json:"name"`
	Status    WorkflowStatus `json:"status"`
	Steps     int            `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
}

// Summarize builds the listing view.
func (w *Workflow) Summarize() Summary {
	return Summary{
		ID:        w.ID,
		Name:      w.Definition.Name,
		Status:    w.Status,
		Steps:     len(w.Steps),
		CreatedAt: w.CreatedAt,
	}
}
