package core

import (
	"context"
	"time"
)

// =============================================================================
// Node protocol port
// =============================================================================

// NodeClient is the request/response contract with instrument drivers. The
// protocol itself (transport, timeouts, driver quirks) lives behind this
// interface; the scheduler only consumes it.
type NodeClient interface {
	// SubmitAction starts an action on a node and returns the node-side
	// handle used to poll for its result.
	SubmitAction(ctx context.Context, node *Node, action string, args map[string]interface{}) (string, error)

	// PollResult fetches the current result for a previously submitted
	// action. A non-terminal result means the action is still running.
	PollResult(ctx context.Context, node *Node, actionID string) (*StepResult, error)

	// GetStatus fetches the node's current status.
	GetStatus(ctx context.Context, node *Node) (NodeStatus, string, error)

	// GetInfo fetches the node's static description.
	GetInfo(ctx context.Context, node *Node) (*NodeInfo, error)

	// CancelAction asks the node to abort one specific action. Best
	// effort: the instrument may still finish its current motion.
	CancelAction(ctx context.Context, node *Node, actionID string) error

	// SendAdmin issues a node-wide administrative command. Best effort:
	// callers do not wait on the instrument actually honoring it.
	SendAdmin(ctx context.Context, node *Node, command AdminCommand) error
}

// =============================================================================
// Run store port
// =============================================================================

// RunStore is the single point of truth for mutable run state: workflows,
// locations and resource locks. All operations are atomic per key; the
// store is durable but not transactional across keys.
type RunStore interface {
	// Workflows.
	PutWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id WorkflowID) (*Workflow, error)
	DeleteWorkflow(ctx context.Context, id WorkflowID) error
	ListWorkflows(ctx context.Context) ([]*Workflow, error)

	// UpdateWorkflow applies fn to the stored workflow under the per-key
	// lock and persists the result. fn returning an error aborts the
	// update.
	UpdateWorkflow(ctx context.Context, id WorkflowID, fn func(*Workflow) error) error

	// Locations.
	PutLocation(ctx context.Context, loc *Location) error
	GetLocation(ctx context.Context, id LocationID) (*Location, error)
	DeleteLocation(ctx context.Context, id LocationID) error
	ListLocations(ctx context.Context) ([]*Location, error)
	UpdateLocation(ctx context.Context, id LocationID, fn func(*Location) error) error

	// Resource locks. AcquireLock is a compare-and-set: it returns false
	// when an unexpired lock exists with a different holder. Re-acquiring
	// with the same holder refreshes the lease.
	AcquireLock(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resourceID, holderID string) (bool, error)
	IsLocked(ctx context.Context, resourceID string) (bool, string, error)
}
