package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/labwire/workcell/internal/core"
)

// FakeClient is an in-memory NodeClient for tests and dry runs. Submitted
// actions complete according to a per-node script; the default script
// succeeds every action on the first poll.
type FakeClient struct {
	mu       sync.Mutex
	statuses map[core.NodeID]core.NodeStatus
	results  map[string]*core.StepResult // actionID -> scripted result
	pending  map[string]int              // actionID -> remaining "running" polls
	submits  []FakeSubmission
	admin    []FakeAdmin
	cancels  []FakeCancel

	// SubmitErr, PollErr and StatusErr, when set, fail the corresponding
	// call.
	SubmitErr error
	PollErr   error
	StatusErr error

	// OnSubmit, when set, runs after a successful submission is recorded.
	// Tests use it to mutate state between submission and the caller's
	// follow-up bookkeeping. It must not call back into the client.
	OnSubmit func(FakeSubmission)

	// RunningPolls is how many polls an action reports RUNNING before its
	// scripted result is returned.
	RunningPolls int
}

// FakeSubmission records one dispatched action.
type FakeSubmission struct {
	Node     core.NodeID
	Action   string
	ActionID string
	Args     map[string]interface{}
}

// FakeAdmin records one admin command.
type FakeAdmin struct {
	Node    core.NodeID
	Command core.AdminCommand
}

// FakeCancel records one action-scoped abort.
type FakeCancel struct {
	Node     core.NodeID
	ActionID string
}

// NewFakeClient creates a fake with every node unknown until SetStatus.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		statuses: make(map[core.NodeID]core.NodeStatus),
		results:  make(map[string]*core.StepResult),
		pending:  make(map[string]int),
	}
}

// SetStatus scripts a node's status.
func (f *FakeClient) SetStatus(id core.NodeID, status core.NodeStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
}

// ScriptResult sets the terminal result for the action id returned by a
// previous SubmitAction.
func (f *FakeClient) ScriptResult(actionID string, result *core.StepResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[actionID] = result
}

// Submissions returns dispatched actions in order.
func (f *FakeClient) Submissions() []FakeSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeSubmission, len(f.submits))
	copy(out, f.submits)
	return out
}

// AdminCommands returns admin commands in order.
func (f *FakeClient) AdminCommands() []FakeAdmin {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeAdmin, len(f.admin))
	copy(out, f.admin)
	return out
}

// Cancellations returns action-scoped aborts in order.
func (f *FakeClient) Cancellations() []FakeCancel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCancel, len(f.cancels))
	copy(out, f.cancels)
	return out
}

// SubmitAction records the submission and allocates an action id.
func (f *FakeClient) SubmitAction(_ context.Context, n *core.Node, action string, args map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	actionID := uuid.NewString()
	sub := FakeSubmission{
		Node:     n.ID,
		Action:   action,
		ActionID: actionID,
		Args:     args,
	}
	f.submits = append(f.submits, sub)
	f.pending[actionID] = f.RunningPolls
	if f.OnSubmit != nil {
		f.OnSubmit(sub)
	}
	return actionID, nil
}

// PollResult returns RUNNING for the scripted number of polls, then the
// scripted result (default: success).
func (f *FakeClient) PollResult(_ context.Context, _ *core.Node, actionID string) (*core.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PollErr != nil {
		return nil, f.PollErr
	}
	remaining, ok := f.pending[actionID]
	if !ok {
		return nil, core.ErrNode("UNKNOWN_ACTION", fmt.Sprintf("action %s was never submitted", actionID))
	}
	if remaining > 0 {
		f.pending[actionID] = remaining - 1
		return &core.StepResult{Status: core.StepStatusRunning}, nil
	}
	if result, ok := f.results[actionID]; ok {
		return result, nil
	}
	return &core.StepResult{Status: core.StepStatusSucceeded}, nil
}

// GetStatus returns the scripted status, UNKNOWN when unset.
func (f *FakeClient) GetStatus(_ context.Context, n *core.Node) (core.NodeStatus, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return core.NodeStatusUnknown, "", f.StatusErr
	}
	if status, ok := f.statuses[n.ID]; ok {
		return status, "", nil
	}
	return core.NodeStatusUnknown, "", nil
}

// GetInfo returns a minimal description.
func (f *FakeClient) GetInfo(_ context.Context, n *core.Node) (*core.NodeInfo, error) {
	return &core.NodeInfo{Name: n.Name, Actions: n.Actions}, nil
}

// CancelAction records the abort.
func (f *FakeClient) CancelAction(_ context.Context, n *core.Node, actionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, FakeCancel{Node: n.ID, ActionID: actionID})
	delete(f.pending, actionID)
	return nil
}

// SendAdmin records the command.
func (f *FakeClient) SendAdmin(_ context.Context, n *core.Node, command core.AdminCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admin = append(f.admin, FakeAdmin{Node: n.ID, Command: command})
	return nil
}

var _ core.NodeClient = (*FakeClient)(nil)
