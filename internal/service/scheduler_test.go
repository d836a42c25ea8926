package service

import (
	"context"
	"strings"
	"testing"

	"github.com/labwire/workcell/internal/adapters/node"
	"github.com/labwire/workcell/internal/adapters/state"
	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
)

type schedulerFixture struct {
	store   *state.MemoryStore
	client  *node.FakeClient
	nodes   *NodeStateCache
	planner *TransferPlanner
	sched   *Scheduler
	bus     *events.Bus
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	logger := logging.NewNop()
	store := state.NewMemoryStore()
	client := node.NewFakeClient()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	nodes := NewNodeStateCache(client, bus, logger, 0, 0)
	nodes.SetNodes([]*core.Node{
		{ID: "arm-1", Name: "arm", URL: "http://arm", Status: core.NodeStatusReady},
	})

	planner := NewTransferPlanner(logger)
	conditions := NewConditionEvaluator(store, nodes, logger)
	sched := NewScheduler(
		SchedulerConfig{RetryBudget: 2},
		store, nodes, client, conditions, planner, NewFIFOPolicy(), bus, logger,
	)
	return &schedulerFixture{
		store:   store,
		client:  client,
		nodes:   nodes,
		planner: planner,
		sched:   sched,
		bus:     bus,
	}
}

func (f *schedulerFixture) submit(t *testing.T, id string, steps ...core.StepDefinition) *core.Workflow {
	t.Helper()
	wf := core.NewWorkflow(core.WorkflowID(id), core.WorkflowDefinition{Name: id, Steps: steps}, core.OwnerContext{})
	if err := f.store.PutWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("PutWorkflow: %v", err)
	}
	return wf
}

func (f *schedulerFixture) workflow(t *testing.T, id string) *core.Workflow {
	t.Helper()
	wf, err := f.store.GetWorkflow(context.Background(), core.WorkflowID(id))
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	return wf
}

func TestTickDispatchesAndCompletes(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1", core.StepDefinition{Name: "move", Node: "arm", Action: "move", Args: map[string]interface{}{"speed": "slow"}})

	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusRunning {
		t.Fatalf("after dispatch tick status = %s, want RUNNING", wf.Status)
	}
	if wf.Steps[0].Status != core.StepStatusRunning {
		t.Fatalf("step status = %s, want RUNNING", wf.Steps[0].Status)
	}
	subs := f.client.Submissions()
	if len(subs) != 1 || subs[0].Action != "move" {
		t.Fatalf("submissions = %+v, want one move", subs)
	}
	if subs[0].Args["speed"] != "slow" {
		t.Errorf("args not forwarded: %v", subs[0].Args)
	}

	// Default fake script: success on first poll.
	f.sched.Tick(ctx)

	wf = f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusCompleted {
		t.Errorf("final status = %s, want COMPLETED", wf.Status)
	}
	if wf.Steps[0].Status != core.StepStatusSucceeded {
		t.Errorf("step status = %s, want SUCCEEDED", wf.Steps[0].Status)
	}
}

func TestStepWaitsWhileNodeNotReady(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.nodes.SetNodes([]*core.Node{
		{ID: "arm-1", Name: "arm", Status: core.NodeStatusBusy},
	})
	f.submit(t, "run-1", core.StepDefinition{Node: "arm", Action: "move"})

	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Steps[0].Status != core.StepStatusQueued {
		t.Errorf("step status = %s, want QUEUED while node busy", wf.Steps[0].Status)
	}
	if len(f.client.Submissions()) != 0 {
		t.Error("nothing may be submitted to a busy node")
	}

	// Node recovers; the next tick dispatches.
	f.nodes.SetNodes([]*core.Node{
		{ID: "arm-1", Name: "arm", Status: core.NodeStatusReady},
	})
	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Steps[0].Status; got != core.StepStatusRunning {
		t.Errorf("step status after recovery = %s, want RUNNING", got)
	}
}

func TestUnknownNodeKeepsStepQueued(t *testing.T) {
	f := newSchedulerFixture(t)
	f.submit(t, "run-1", core.StepDefinition{Node: "ghost", Action: "move"})

	f.sched.Tick(context.Background())

	if got := f.workflow(t, "run-1").Steps[0].Status; got != core.StepStatusQueued {
		t.Errorf("step status = %s, want QUEUED for unknown node", got)
	}
}

func TestStepFailureHaltsWorkflow(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1",
		core.StepDefinition{Name: "first", Node: "arm", Action: "move"},
		core.StepDefinition{Name: "second", Node: "arm", Action: "move"},
	)

	f.sched.Tick(ctx)
	subs := f.client.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	f.client.ScriptResult(subs[0].ActionID, &core.StepResult{
		Status: core.StepStatusFailed,
		Error:  "gripper jam",
	})

	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusFailed {
		t.Fatalf("workflow status = %s, want FAILED", wf.Status)
	}
	if !strings.Contains(wf.Error, "gripper jam") {
		t.Errorf("workflow error = %q, want the step error", wf.Error)
	}
	if wf.Steps[1].Status != core.StepStatusQueued {
		t.Errorf("second step = %s, must never run", wf.Steps[1].Status)
	}

	// A failed workflow is no longer schedulable: no skip-ahead.
	f.sched.Tick(ctx)
	if len(f.client.Submissions()) != 1 {
		t.Error("failed workflow dispatched another step")
	}
}

func TestPollRetryBudgetExhaustion(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1", core.StepDefinition{Node: "arm", Action: "move"})

	f.sched.Tick(ctx)
	f.client.PollErr = core.ErrTransient("NODE_UNREACHABLE", "connection refused")

	// Budget is 2: two failed polls spend it.
	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Status; got != core.WorkflowStatusRunning {
		t.Fatalf("after first poll failure status = %s, want RUNNING", got)
	}
	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusFailed {
		t.Fatalf("after budget spent status = %s, want FAILED", wf.Status)
	}
	if !strings.Contains(wf.Error, "retry budget exhausted") {
		t.Errorf("workflow error = %q, want budget exhaustion", wf.Error)
	}
}

func TestNonRetryablePollErrorFailsImmediately(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1", core.StepDefinition{Node: "arm", Action: "move"})

	f.sched.Tick(ctx)
	f.client.PollErr = core.ErrNode("FAULT", "hardware estop")
	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusFailed {
		t.Errorf("status = %s, want FAILED without retries", wf.Status)
	}
}

func TestLockGateBlocksAndReleases(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1", core.StepDefinition{
		Node: "arm", Action: "move", Locks: []string{"plate-1"},
	})

	// Another holder owns the lock: the step must wait.
	if ok, _ := f.store.AcquireLock(ctx, "plate-1", "someone-else", 0); !ok {
		t.Fatal("test setup: lock acquisition failed")
	}
	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Steps[0].Status; got != core.StepStatusQueued {
		t.Fatalf("step status = %s, want QUEUED while lock held", got)
	}

	if _, err := f.store.ReleaseLock(ctx, "plate-1", "someone-else"); err != nil {
		t.Fatal(err)
	}
	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Steps[0].Status; got != core.StepStatusRunning {
		t.Fatalf("step status = %s, want RUNNING after release", got)
	}
	if locked, _, _ := f.store.IsLocked(ctx, "plate-1"); !locked {
		t.Error("running step must hold its lock")
	}

	// Completion releases the lock.
	f.sched.Tick(ctx)
	if locked, holder, _ := f.store.IsLocked(ctx, "plate-1"); locked {
		t.Errorf("lock still held by %s after step completion", holder)
	}
}

func TestConditionGate(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	if err := f.store.PutLocation(ctx, &core.Location{ID: "deck_a1", Name: "Deck A1"}); err != nil {
		t.Fatal(err)
	}
	f.submit(t, "run-1", core.StepDefinition{
		Node: "arm", Action: "move",
		Conditions: []core.Condition{
			{Kind: core.ConditionResourcePresent, Location: "deck_a1"},
		},
	})

	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Steps[0].Status; got != core.StepStatusQueued {
		t.Fatalf("step status = %s, want QUEUED while condition unmet", got)
	}

	err := f.store.UpdateLocation(ctx, "deck_a1", func(loc *core.Location) error {
		loc.ResourceID = "plate-1"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Steps[0].Status; got != core.StepStatusRunning {
		t.Errorf("step status = %s, want RUNNING once condition holds", got)
	}
}

func TestDispatchResolvesLocationArgs(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	loc := location("deck_a1", "arm")
	if err := f.store.PutLocation(ctx, loc); err != nil {
		t.Fatal(err)
	}
	f.submit(t, "run-1", core.StepDefinition{
		Node: "arm", Action: "move",
		Locations: map[string]core.LocationID{"target": "deck_a1"},
	})

	f.sched.Tick(ctx)

	subs := f.client.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	ref, ok := subs[0].Args["target"].(map[string]interface{})
	if !ok {
		t.Fatalf("target arg = %T, want resolved reference", subs[0].Args["target"])
	}
	if ref["location_id"] != "deck_a1" {
		t.Errorf("location_id = %v, want deck_a1", ref["location_id"])
	}
	if _, ok := ref["representation"]; !ok {
		t.Error("representation for the target node missing")
	}
}

func configureTransferFixture(t *testing.T, f *schedulerFixture) {
	t.Helper()
	ctx := context.Background()
	locs := []*core.Location{location("a", "arm"), location("b", "arm")}
	for _, l := range locs {
		if err := f.store.PutLocation(ctx, l); err != nil {
			t.Fatal(err)
		}
	}
	f.planner.Configure(locs, []*core.TransferTemplate{template("arm_move", "arm", 1)})
}

func TestTransferStepExpandsAndDispatches(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	configureTransferFixture(t, f)

	f.submit(t, "run-1", core.StepDefinition{
		Name:   "move plate",
		Action: core.TransferAction,
		Locations: map[string]core.LocationID{
			core.TransferArgSource:      "a",
			core.TransferArgDestination: "b",
		},
		Args: map[string]interface{}{core.TransferArgResource: "plate-1"},
	})

	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Steps[0].IsTransfer() {
		t.Fatal("transfer step was not expanded")
	}
	if got := wf.Steps[0].Definition.Action; got != "pick_and_place" {
		t.Errorf("expanded action = %s, want pick_and_place", got)
	}
	// Expansion and first-leg dispatch happen in the same tick.
	if wf.Steps[0].Status != core.StepStatusRunning {
		t.Errorf("first leg status = %s, want RUNNING", wf.Steps[0].Status)
	}

	f.sched.Tick(ctx)
	if got := f.workflow(t, "run-1").Status; got != core.WorkflowStatusCompleted {
		t.Errorf("final status = %s, want COMPLETED", got)
	}
}

func TestTransferNoPathFailsWorkflow(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	locs := []*core.Location{location("a", "arm"), location("b", "crane")}
	for _, l := range locs {
		if err := f.store.PutLocation(ctx, l); err != nil {
			t.Fatal(err)
		}
	}
	f.planner.Configure(locs, []*core.TransferTemplate{template("arm_move", "arm", 1)})

	f.submit(t, "run-1", core.StepDefinition{
		Action: core.TransferAction,
		Locations: map[string]core.LocationID{
			core.TransferArgSource:      "a",
			core.TransferArgDestination: "b",
		},
	})

	f.sched.Tick(ctx)

	wf := f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusFailed {
		t.Fatalf("status = %s, want FAILED (no path is permanent)", wf.Status)
	}
	if !strings.Contains(wf.Error, "no transfer path") {
		t.Errorf("workflow error = %q, want no transfer path", wf.Error)
	}
}

func TestDispatchRaceAbortsOnlySubmittedAction(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1", core.StepDefinition{Name: "move", Node: "arm", Action: "move", Locks: []string{"plate-1"}})

	// Cancel lands between action submission and the state update, as a
	// concurrent API call would.
	f.client.OnSubmit = func(node.FakeSubmission) {
		err := f.store.UpdateWorkflow(ctx, "run-1", func(wf *core.Workflow) error {
			return wf.MarkCancelled()
		})
		if err != nil {
			t.Errorf("cancel during dispatch: %v", err)
		}
	}

	f.sched.Tick(ctx)

	subs := f.client.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	cancels := f.client.Cancellations()
	if len(cancels) != 1 || cancels[0].ActionID != subs[0].ActionID {
		t.Fatalf("cancellations = %+v, want one abort scoped to %s", cancels, subs[0].ActionID)
	}
	if locked, _, _ := f.store.IsLocked(ctx, "plate-1"); locked {
		t.Error("lost race must release the step's locks")
	}
	wf := f.workflow(t, "run-1")
	if wf.Status != core.WorkflowStatusCancelled {
		t.Errorf("status = %s, want CANCELLED preserved", wf.Status)
	}
}

func TestSubmissionOrderAcrossWorkflows(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.submit(t, "run-1", core.StepDefinition{Node: "arm", Action: "first"})
	f.submit(t, "run-2", core.StepDefinition{Node: "arm", Action: "second"})

	f.sched.Tick(ctx)

	subs := f.client.Submissions()
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2", len(subs))
	}
	if subs[0].Action != "first" || subs[1].Action != "second" {
		t.Errorf("dispatch order = [%s %s], want submission order", subs[0].Action, subs[1].Action)
	}
}
