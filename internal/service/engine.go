package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
)

// WorkflowEngine is the public face of the run system: it accepts and
// controls workflow runs and owns the scheduler's lifecycle. All methods
// are safe for concurrent use; run state mutations go through the store's
// per-key atomic updates.
type WorkflowEngine struct {
	store     core.RunStore
	nodes     *NodeStateCache
	client    core.NodeClient
	scheduler *Scheduler
	planner   *TransferPlanner
	bus       *events.Bus
	logger    *logging.Logger

	mu        sync.RWMutex
	resources map[string]*core.Resource
}

// NewWorkflowEngine assembles the engine around an existing scheduler.
func NewWorkflowEngine(
	store core.RunStore,
	nodes *NodeStateCache,
	client core.NodeClient,
	scheduler *Scheduler,
	planner *TransferPlanner,
	bus *events.Bus,
	logger *logging.Logger,
) *WorkflowEngine {
	return &WorkflowEngine{
		store:     store,
		nodes:     nodes,
		client:    client,
		scheduler: scheduler,
		planner:   planner,
		bus:       bus,
		logger:    logger,
		resources: make(map[string]*core.Resource),
	}
}

// Run starts the node poller and the scheduler and blocks until the
// context is cancelled.
func (e *WorkflowEngine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.nodes.Run(ctx)
		return nil
	})
	g.Go(func() error {
		e.scheduler.Run(ctx)
		return nil
	})
	return g.Wait()
}

// Planner exposes the transfer planner for read-only queries.
func (e *WorkflowEngine) Planner() *TransferPlanner {
	return e.planner
}

// Nodes exposes the node cache for read-only queries.
func (e *WorkflowEngine) Nodes() *NodeStateCache {
	return e.nodes
}

// =============================================================================
// Workflow control
// =============================================================================

// Submit validates a definition and enqueues a new run. The run starts at
// the next scheduler tick; submission never blocks on scheduling.
func (e *WorkflowEngine) Submit(ctx context.Context, def core.WorkflowDefinition, owner core.OwnerContext) (*core.Workflow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	wf := core.NewWorkflow(core.WorkflowID(uuid.NewString()), def, owner)
	if err := e.store.PutWorkflow(ctx, wf); err != nil {
		return nil, err
	}

	e.bus.Publish(events.NewWorkflowSubmittedEvent(string(wf.ID), def.Name, len(wf.Steps)))
	e.logger.Info("workflow submitted",
		"workflow", wf.ID, "name", def.Name, "steps", len(wf.Steps))
	return wf, nil
}

// Get returns one run.
func (e *WorkflowEngine) Get(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	return e.store.GetWorkflow(ctx, id)
}

// List returns all runs in submission order.
func (e *WorkflowEngine) List(ctx context.Context) ([]*core.Workflow, error) {
	return e.store.ListWorkflows(ctx)
}

// Pause stops further dispatch for a run. A step already running on a node
// continues to completion; the pause takes effect at the step boundary.
func (e *WorkflowEngine) Pause(ctx context.Context, id core.WorkflowID) error {
	err := e.store.UpdateWorkflow(ctx, id, func(wf *core.Workflow) error {
		return wf.MarkPaused()
	})
	if err != nil {
		return err
	}
	e.bus.Publish(events.NewWorkflowPausedEvent(string(id)))
	e.logger.Info("workflow paused", "workflow", id)
	return nil
}

// Resume puts a paused run back under the scheduler.
func (e *WorkflowEngine) Resume(ctx context.Context, id core.WorkflowID) error {
	err := e.store.UpdateWorkflow(ctx, id, func(wf *core.Workflow) error {
		return wf.MarkResumed()
	})
	if err != nil {
		return err
	}
	e.bus.Publish(events.NewWorkflowResumedEvent(string(id)))
	e.logger.Info("workflow resumed", "workflow", id)
	return nil
}

// Cancel terminates a run immediately. The run and its non-terminal steps
// go CANCELLED in the store first; aborting the instrument-side action and
// releasing locks are best effort afterwards. The instrument may still
// finish its current physical operation.
func (e *WorkflowEngine) Cancel(ctx context.Context, id core.WorkflowID) error {
	var running *core.Step
	err := e.store.UpdateWorkflow(ctx, id, func(wf *core.Workflow) error {
		for _, s := range wf.Steps {
			if s.Status == core.StepStatusRunning {
				cp := *s
				running = &cp
				break
			}
		}
		return wf.MarkCancelled()
	})
	if err != nil {
		return err
	}

	if running != nil {
		if node, ok := e.resolveNode(running.Definition.Node); ok && running.ActionID != "" {
			if err := e.client.CancelAction(ctx, node, running.ActionID); err != nil {
				e.logger.Warn("node-side cancel failed",
					"workflow", id, "step", running.ID, "node", node.Name, "error", err)
			}
		}
		for _, resource := range running.Definition.Locks {
			if _, err := e.store.ReleaseLock(ctx, resource, lockHolder(running.ID)); err != nil {
				e.logger.Warn("releasing lock on cancel", "resource", resource, "error", err)
			}
		}
	}

	e.bus.Publish(events.NewWorkflowCancelledEvent(string(id)))
	e.logger.Info("workflow cancelled", "workflow", id)
	return nil
}

func (e *WorkflowEngine) resolveNode(ref string) (*core.Node, bool) {
	if n, ok := e.nodes.Get(core.NodeID(ref)); ok {
		return n, true
	}
	return e.nodes.GetByName(ref)
}

// =============================================================================
// Locations and resources
// =============================================================================

// Locations returns all known locations.
func (e *WorkflowEngine) Locations(ctx context.Context) ([]*core.Location, error) {
	return e.store.ListLocations(ctx)
}

// Location returns one location.
func (e *WorkflowEngine) Location(ctx context.Context, id core.LocationID) (*core.Location, error) {
	return e.store.GetLocation(ctx, id)
}

// RegisterResource records a trackable resource. The parent chain is
// validated against already registered resources so a later attach cannot
// introduce a containment cycle.
func (e *WorkflowEngine) RegisterResource(res core.Resource) error {
	if res.ID == "" {
		return core.ErrValidation("RESOURCE_ID_REQUIRED", "resource ID cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, existed := e.resources[res.ID]
	e.resources[res.ID] = &res
	err := core.ValidateAncestry(res.ID, func(id string) (*core.Resource, bool) {
		r, ok := e.resources[id]
		return r, ok
	})
	if err != nil {
		if existed {
			e.resources[res.ID] = prev
		} else {
			delete(e.resources, res.ID)
		}
		return err
	}
	return nil
}

// Resource returns a registered resource.
func (e *WorkflowEngine) Resource(id string) (*core.Resource, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.resources[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// AttachResource places a resource at a location. The location must be
// unoccupied unless the same resource is already there.
func (e *WorkflowEngine) AttachResource(ctx context.Context, locID core.LocationID, resourceID string) error {
	if resourceID == "" {
		return core.ErrValidation("RESOURCE_ID_REQUIRED", "resource ID cannot be empty")
	}
	return e.store.UpdateLocation(ctx, locID, func(loc *core.Location) error {
		if loc.ResourceID != "" && loc.ResourceID != resourceID {
			return core.ErrState("LOCATION_OCCUPIED",
				"location "+string(locID)+" already holds resource "+loc.ResourceID)
		}
		loc.ResourceID = resourceID
		return nil
	})
}

// DetachResource clears a location's resource.
func (e *WorkflowEngine) DetachResource(ctx context.Context, locID core.LocationID) error {
	return e.store.UpdateLocation(ctx, locID, func(loc *core.Location) error {
		loc.ResourceID = ""
		return nil
	})
}

// =============================================================================
// Resource locks
// =============================================================================

// AcquireLock leases a resource for an external holder through the same
// compare-and-set the scheduler uses, so API callers and steps contend on
// equal footing. A non-positive ttl gets the scheduler's default lease.
func (e *WorkflowEngine) AcquireLock(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	if resourceID == "" {
		return false, core.ErrValidation("RESOURCE_ID_REQUIRED", "resource ID cannot be empty")
	}
	if holderID == "" {
		return false, core.ErrValidation("HOLDER_ID_REQUIRED", "holder ID cannot be empty")
	}
	if ttl <= 0 {
		ttl = e.scheduler.cfg.LockTTL
	}
	ok, err := e.store.AcquireLock(ctx, resourceID, holderID, ttl)
	if err != nil {
		return false, err
	}
	if ok {
		e.logger.Info("lock acquired", "resource", resourceID, "holder", holderID, "ttl", ttl)
	}
	return ok, nil
}

// ReleaseLock releases a lease held by holderID. False without error means
// the lock was not held by that holder.
func (e *WorkflowEngine) ReleaseLock(ctx context.Context, resourceID, holderID string) (bool, error) {
	if resourceID == "" {
		return false, core.ErrValidation("RESOURCE_ID_REQUIRED", "resource ID cannot be empty")
	}
	if holderID == "" {
		return false, core.ErrValidation("HOLDER_ID_REQUIRED", "holder ID cannot be empty")
	}
	released, err := e.store.ReleaseLock(ctx, resourceID, holderID)
	if err != nil {
		return false, err
	}
	if released {
		e.logger.Info("lock released", "resource", resourceID, "holder", holderID)
	}
	return released, nil
}

// IsLocked reports whether the resource has a live lease and by whom.
func (e *WorkflowEngine) IsLocked(ctx context.Context, resourceID string) (bool, string, error) {
	return e.store.IsLocked(ctx, resourceID)
}

// =============================================================================
// Node administration
// =============================================================================

// NodeAdmin forwards an administrative command to a node.
func (e *WorkflowEngine) NodeAdmin(ctx context.Context, ref string, command core.AdminCommand) error {
	node, ok := e.resolveNode(ref)
	if !ok {
		return core.ErrNotFound("node", ref)
	}
	return e.client.SendAdmin(ctx, node, command)
}
