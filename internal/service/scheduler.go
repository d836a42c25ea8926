package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
)

// SchedulerConfig holds the scheduler tunables.
type SchedulerConfig struct {
	// TickInterval must be >= the node status poll interval; dispatching on
	// staler information is unsafe.
	TickInterval time.Duration

	// RetryBudget bounds transient node failures per step before the step
	// fails hard.
	RetryBudget int

	// LockTTL is the lease granted for a step's declared resource locks.
	// There is no mid-step renewal: the lease must outlive the step.
	LockTTL time.Duration
}

// DefaultSchedulerConfig returns the default tunables.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval: 5 * time.Second,
		RetryBudget:  3,
		LockTTL:      core.DefaultLockTTL,
	}
}

// Scheduler is the cooperative control loop. Each tick it scans active
// workflows in submission order, reconciles running steps against the node
// collaborator, and dispatches whichever queued steps pass the readiness
// gates. A tick never blocks on an instrument finishing its work; node-side
// actions run concurrently and are only polled here.
type Scheduler struct {
	cfg        SchedulerConfig
	store      core.RunStore
	nodes      *NodeStateCache
	client     core.NodeClient
	conditions *ConditionEvaluator
	planner    *TransferPlanner
	policy     SchedulingPolicy
	retry      *RetryPolicy
	bus        *events.Bus
	logger     *logging.Logger
}

// NewScheduler wires the control loop. A nil policy gets FIFO.
func NewScheduler(
	cfg SchedulerConfig,
	store core.RunStore,
	nodes *NodeStateCache,
	client core.NodeClient,
	conditions *ConditionEvaluator,
	planner *TransferPlanner,
	policy SchedulingPolicy,
	bus *events.Bus,
	logger *logging.Logger,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = core.DefaultLockTTL
	}
	if policy == nil {
		policy = NewFIFOPolicy()
	}
	return &Scheduler{
		cfg:        cfg,
		store:      store,
		nodes:      nodes,
		client:     client,
		conditions: conditions,
		planner:    planner,
		policy:     policy,
		retry:      DefaultRetryPolicy().WithBudget(cfg.RetryBudget),
		bus:        bus,
		logger:     logger,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"tick", s.cfg.TickInterval,
		"retry_budget", s.cfg.RetryBudget,
		"policy", s.policy.Name(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. Errors from any single workflow are
// contained: one broken run or unreachable collaborator never halts the
// others.
func (s *Scheduler) Tick(ctx context.Context) {
	workflows, err := s.store.ListWorkflows(ctx)
	if err != nil {
		s.logger.Error("tick skipped: listing workflows", "error", err)
		return
	}

	var candidates []Candidate
	for _, wf := range workflows {
		if !wf.IsSchedulable() {
			continue
		}
		step := wf.CurrentStep()
		if step == nil {
			// All steps terminal but the run is not; close it out.
			s.finishWorkflow(ctx, wf.ID)
			continue
		}
		switch step.Status {
		case core.StepStatusRunning:
			s.reconcile(ctx, wf, step)
		case core.StepStatusQueued:
			candidates = append(candidates, Candidate{Workflow: wf, Step: step})
		}
	}

	for _, c := range s.policy.SelectReadySteps(candidates) {
		s.dispatch(ctx, c.Workflow, c.Step)
	}
}

// =============================================================================
// Dispatch path
// =============================================================================

// dispatch runs the readiness gates for one queued step and submits it.
// Any gate failing leaves the step QUEUED for the next tick.
func (s *Scheduler) dispatch(ctx context.Context, wf *core.Workflow, step *core.Step) {
	if step.IsTransfer() {
		expanded, ok := s.expandTransfer(ctx, wf, step)
		if !ok {
			return
		}
		wf, step = expanded.Workflow, expanded.Step
		if step == nil || step.Status != core.StepStatusQueued || step.IsTransfer() {
			return
		}
	}

	node, ok := s.resolveNode(step.Definition.Node)
	if !ok {
		s.logger.Debug("step waiting: unknown node", "workflow", wf.ID, "step", step.ID, "node", step.Definition.Node)
		return
	}
	if !node.IsReady() {
		s.logger.Debug("step waiting: node not ready",
			"workflow", wf.ID, "step", step.ID, "node", node.Name, "status", node.Status)
		return
	}
	if !s.conditions.IsSatisfied(ctx, step) {
		s.logger.Debug("step waiting: conditions not met", "workflow", wf.ID, "step", step.ID)
		return
	}

	holder := lockHolder(step.ID)
	acquired, ok := s.acquireLocks(ctx, step, holder)
	if !ok {
		s.releaseLocksByName(ctx, acquired, holder)
		return
	}

	resolved, err := s.resolveArgs(ctx, node, step)
	if err != nil {
		s.releaseLocks(ctx, step, holder)
		s.failStep(ctx, wf.ID, step.ID, fmt.Sprintf("resolving args: %v", err))
		return
	}

	var actionID string
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		var submitErr error
		actionID, submitErr = s.client.SubmitAction(ctx, node, step.Definition.Action, resolved)
		return submitErr
	})
	if err != nil {
		s.releaseLocks(ctx, step, holder)
		s.failStep(ctx, wf.ID, step.ID, fmt.Sprintf("submitting action: %v", err))
		return
	}

	err = s.store.UpdateWorkflow(ctx, wf.ID, func(stored *core.Workflow) error {
		st, ok := stored.StepByID(step.ID)
		if !ok {
			return core.ErrNotFound("step", string(step.ID))
		}
		if err := st.MarkReady(); err != nil {
			return err
		}
		if err := st.MarkRunning(actionID, resolved); err != nil {
			return err
		}
		if stored.Status == core.WorkflowStatusQueued {
			if err := stored.MarkRunning(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// State update lost the race (pause/cancel between gates and here).
		// Abort only the action just submitted; the node may be running
		// another workflow's work. Locks are released.
		s.logger.Warn("dispatch state update failed", "workflow", wf.ID, "step", step.ID, "error", err)
		_ = s.client.CancelAction(ctx, node, actionID)
		s.releaseLocks(ctx, step, holder)
		return
	}

	if wf.Status == core.WorkflowStatusQueued {
		s.bus.Publish(events.NewWorkflowStartedEvent(string(wf.ID)))
	}
	s.bus.Publish(events.NewStepDispatchedEvent(string(wf.ID), string(step.ID), node.Name, step.Definition.Action))
	s.logger.Info("step dispatched",
		"workflow", wf.ID, "step", step.ID, "node", node.Name, "action", step.Definition.Action)
}

// expandTransfer replaces a transfer request with the planned composite
// legs. Absence of a path is permanent: the step and its workflow fail
// immediately instead of waiting for topology that will not appear.
func (s *Scheduler) expandTransfer(ctx context.Context, wf *core.Workflow, step *core.Step) (Candidate, bool) {
	source, destination, resourceID, err := transferRequest(step)
	if err != nil {
		s.failStep(ctx, wf.ID, step.ID, err.Error())
		return Candidate{}, false
	}

	plan, err := s.planner.Plan(source, destination, resourceID)
	if err != nil {
		if core.IsCategory(err, core.ErrCatNoPath) || core.IsCategory(err, core.ErrCatValidation) || core.IsCategory(err, core.ErrCatNotFound) {
			s.failStep(ctx, wf.ID, step.ID, err.Error())
		} else {
			// Planner unavailable for any other reason degrades to
			// condition-not-met: stay queued, retry next tick.
			s.logger.Warn("transfer planning unavailable", "workflow", wf.ID, "step", step.ID, "error", err)
		}
		return Candidate{}, false
	}

	replacements := make([]*core.Step, 0, len(plan.Definition.Steps))
	for i, sd := range plan.Definition.Steps {
		replacements = append(replacements, core.NewStep(core.StepID(fmt.Sprintf("%s-t%d", step.ID, i)), sd))
	}

	err = s.store.UpdateWorkflow(ctx, wf.ID, func(stored *core.Workflow) error {
		return stored.ExpandStep(step.ID, replacements)
	})
	if err != nil {
		s.logger.Warn("transfer expansion failed", "workflow", wf.ID, "step", step.ID, "error", err)
		return Candidate{}, false
	}

	s.bus.Publish(events.NewStepExpandedEvent(string(wf.ID), string(step.ID), len(plan.Legs)))
	s.logger.Info("transfer expanded",
		"workflow", wf.ID, "step", step.ID,
		"source", source, "destination", destination,
		"legs", len(plan.Legs), "cost", plan.TotalCost)

	updated, err := s.store.GetWorkflow(ctx, wf.ID)
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{Workflow: updated, Step: updated.CurrentStep()}, true
}

// transferRequest extracts the transfer parameters from a step.
func transferRequest(step *core.Step) (source, destination core.LocationID, resourceID string, err error) {
	if loc, ok := step.Definition.Locations[core.TransferArgSource]; ok {
		source = loc
	} else if v, ok := step.Definition.Args[core.TransferArgSource].(string); ok {
		source = core.LocationID(v)
	}
	if loc, ok := step.Definition.Locations[core.TransferArgDestination]; ok {
		destination = loc
	} else if v, ok := step.Definition.Args[core.TransferArgDestination].(string); ok {
		destination = core.LocationID(v)
	}
	if v, ok := step.Definition.Args[core.TransferArgResource].(string); ok {
		resourceID = v
	}
	if source == "" || destination == "" {
		return "", "", "", core.ErrValidation("TRANSFER_ARGS", "transfer step requires source and destination locations")
	}
	return source, destination, resourceID, nil
}

// resolveArgs substitutes symbolic location references with the concrete
// representation the target node uses, leaving everything else untouched.
func (s *Scheduler) resolveArgs(ctx context.Context, node *core.Node, step *core.Step) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(step.Definition.Args)+len(step.Definition.Locations)+len(step.Definition.Files))
	for k, v := range step.Definition.Args {
		resolved[k] = v
	}
	for key, locID := range step.Definition.Locations {
		loc, err := s.store.GetLocation(ctx, locID)
		if err != nil {
			return nil, err
		}
		ref := map[string]interface{}{"location_id": string(loc.ID)}
		if rep, ok := loc.Representation(node.Name); ok {
			ref["representation"] = json.RawMessage(rep)
		}
		resolved[key] = ref
	}
	for key, path := range step.Definition.Files {
		resolved[key] = path
	}
	return resolved, nil
}

// =============================================================================
// Reconcile path
// =============================================================================

// reconcile polls the node for a running step's result and applies it.
func (s *Scheduler) reconcile(ctx context.Context, wf *core.Workflow, step *core.Step) {
	node, ok := s.resolveNode(step.Definition.Node)
	if !ok {
		s.pollFailure(ctx, wf, step, core.ErrTransient("NODE_GONE", "node missing from cache"))
		return
	}

	result, err := s.client.PollResult(ctx, node, step.ActionID)
	if err != nil {
		if core.IsRetryable(err) {
			s.pollFailure(ctx, wf, step, err)
		} else {
			s.releaseLocks(ctx, step, lockHolder(step.ID))
			s.failStep(ctx, wf.ID, step.ID, err.Error())
		}
		return
	}

	if !result.Terminal() {
		return
	}

	holder := lockHolder(step.ID)
	s.releaseLocks(ctx, step, holder)

	switch result.Status {
	case core.StepStatusSucceeded:
		s.completeStep(ctx, wf.ID, step.ID, result)
	case core.StepStatusCancelled:
		s.failStep(ctx, wf.ID, step.ID, "action cancelled on node")
	default:
		msg := result.Error
		if msg == "" {
			msg = "action failed on node"
		}
		s.failStep(ctx, wf.ID, step.ID, msg)
	}
}

// pollFailure counts a transient failure against the step's retry budget,
// failing the step hard when the budget is spent.
func (s *Scheduler) pollFailure(ctx context.Context, wf *core.Workflow, step *core.Step, cause error) {
	exhausted := false
	err := s.store.UpdateWorkflow(ctx, wf.ID, func(stored *core.Workflow) error {
		st, ok := stored.StepByID(step.ID)
		if !ok {
			return core.ErrNotFound("step", string(step.ID))
		}
		st.Retries++
		exhausted = st.Retries >= s.cfg.RetryBudget
		return nil
	})
	if err != nil {
		s.logger.Warn("recording poll failure", "workflow", wf.ID, "step", step.ID, "error", err)
		return
	}

	if !exhausted {
		s.logger.Debug("poll failed, will retry",
			"workflow", wf.ID, "step", step.ID, "error", cause)
		return
	}

	s.releaseLocks(ctx, step, lockHolder(step.ID))
	s.failStep(ctx, wf.ID, step.ID,
		fmt.Sprintf("retry budget exhausted after %d attempts: %v", s.cfg.RetryBudget, cause))
}

// completeStep records a success and advances or completes the workflow.
func (s *Scheduler) completeStep(ctx context.Context, wfID core.WorkflowID, stepID core.StepID, result *core.StepResult) {
	completed := false
	var startedAt time.Time
	err := s.store.UpdateWorkflow(ctx, wfID, func(stored *core.Workflow) error {
		st, ok := stored.StepByID(stepID)
		if !ok {
			return core.ErrNotFound("step", string(stepID))
		}
		if err := st.MarkSucceeded(result); err != nil {
			return err
		}
		if stored.CurrentStep() == nil && stored.Status == core.WorkflowStatusRunning {
			if err := stored.MarkCompleted(); err != nil {
				return err
			}
			completed = true
			if stored.StartedAt != nil {
				startedAt = *stored.StartedAt
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("recording step success", "workflow", wfID, "step", stepID, "error", err)
		return
	}

	s.bus.Publish(events.NewStepSucceededEvent(string(wfID), string(stepID)))
	s.logger.Info("step succeeded", "workflow", wfID, "step", stepID)

	if completed {
		s.bus.Publish(events.NewWorkflowCompletedEvent(string(wfID), time.Since(startedAt)))
		s.logger.Info("workflow completed", "workflow", wfID)
	}
}

// failStep marks the step FAILED and halts its workflow. Other workflows
// are unaffected; there is no skip-ahead past a failed step.
func (s *Scheduler) failStep(ctx context.Context, wfID core.WorkflowID, stepID core.StepID, errText string) {
	err := s.store.UpdateWorkflow(ctx, wfID, func(stored *core.Workflow) error {
		st, ok := stored.StepByID(stepID)
		if !ok {
			return core.ErrNotFound("step", string(stepID))
		}
		if err := st.MarkFailed(errText); err != nil {
			return err
		}
		return stored.MarkFailed(fmt.Sprintf("step %s failed: %s", st.Definition.Name, errText))
	})
	if err != nil {
		s.logger.Warn("recording step failure", "workflow", wfID, "step", stepID, "error", err)
		return
	}

	s.bus.Publish(events.NewStepFailedEvent(string(wfID), string(stepID), errText))
	s.bus.Publish(events.NewWorkflowFailedEvent(string(wfID), errText))
	s.logger.Warn("step failed", "workflow", wfID, "step", stepID, "error", errText)
}

// finishWorkflow closes out a run whose steps are all terminal.
func (s *Scheduler) finishWorkflow(ctx context.Context, wfID core.WorkflowID) {
	err := s.store.UpdateWorkflow(ctx, wfID, func(stored *core.Workflow) error {
		if stored.Status != core.WorkflowStatusRunning || stored.CurrentStep() != nil {
			return nil
		}
		return stored.MarkCompleted()
	})
	if err != nil {
		s.logger.Warn("finishing workflow", "workflow", wfID, "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// resolveNode looks the step's node reference up in the cache, by id then
// by name.
func (s *Scheduler) resolveNode(ref string) (*core.Node, bool) {
	if n, ok := s.nodes.Get(core.NodeID(ref)); ok {
		return n, true
	}
	return s.nodes.GetByName(ref)
}

// acquireLocks claims every lock the step declares. Returns the resources
// actually acquired and whether all succeeded; a conflict leaves the step
// queued, never force-breaks another holder's lease.
func (s *Scheduler) acquireLocks(ctx context.Context, step *core.Step, holder string) ([]string, bool) {
	var acquired []string
	for _, resource := range step.Definition.Locks {
		ok, err := s.store.AcquireLock(ctx, resource, holder, s.cfg.LockTTL)
		if err != nil {
			s.logger.Warn("lock service unavailable", "resource", resource, "error", err)
			return acquired, false
		}
		if !ok {
			s.logger.Debug("step waiting: lock held elsewhere", "step", step.ID, "resource", resource)
			return acquired, false
		}
		acquired = append(acquired, resource)
	}
	return acquired, true
}

func (s *Scheduler) releaseLocks(ctx context.Context, step *core.Step, holder string) {
	s.releaseLocksByName(ctx, step.Definition.Locks, holder)
}

func (s *Scheduler) releaseLocksByName(ctx context.Context, resources []string, holder string) {
	for _, resource := range resources {
		if _, err := s.store.ReleaseLock(ctx, resource, holder); err != nil {
			s.logger.Warn("releasing lock", "resource", resource, "error", err)
		}
	}
}

func lockHolder(stepID core.StepID) string {
	return "step:" + string(stepID)
}
