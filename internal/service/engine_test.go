package service

import (
	"context"
	"testing"

	"github.com/labwire/workcell/internal/adapters/node"
	"github.com/labwire/workcell/internal/adapters/state"
	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
)

type engineFixture struct {
	engine *WorkflowEngine
	store  *state.MemoryStore
	client *node.FakeClient
	sched  *Scheduler
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := logging.NewNop()
	store := state.NewMemoryStore()
	client := node.NewFakeClient()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	nodes := NewNodeStateCache(client, bus, logger, 0, 0)
	nodes.SetNodes([]*core.Node{
		{ID: "arm-1", Name: "arm", Status: core.NodeStatusReady},
	})
	planner := NewTransferPlanner(logger)
	conditions := NewConditionEvaluator(store, nodes, logger)
	sched := NewScheduler(SchedulerConfig{RetryBudget: 2},
		store, nodes, client, conditions, planner, nil, bus, logger)
	engine := NewWorkflowEngine(store, nodes, client, sched, planner, bus, logger)
	return &engineFixture{engine: engine, store: store, client: client, sched: sched}
}

func singleStepDef() core.WorkflowDefinition {
	return core.WorkflowDefinition{
		Name:  "move plate",
		Steps: []core.StepDefinition{{Name: "move", Node: "arm", Action: "move"}},
	}
}

func TestSubmitValidatesAndQueues(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	wf, err := f.engine.Submit(ctx, singleStepDef(), core.OwnerContext{UserID: "jdoe"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if wf.Status != core.WorkflowStatusQueued {
		t.Errorf("status = %s, want QUEUED", wf.Status)
	}
	if wf.ID == "" {
		t.Error("no id assigned")
	}

	stored, err := f.engine.Get(ctx, wf.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Owner.UserID != "jdoe" {
		t.Errorf("owner = %+v, want jdoe", stored.Owner)
	}

	if _, err := f.engine.Submit(ctx, core.WorkflowDefinition{Name: "empty"}, core.OwnerContext{}); !core.IsCategory(err, core.ErrCatValidation) {
		t.Errorf("empty definition err = %v, want validation", err)
	}
}

func TestPauseStopsDispatch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	wf, err := f.engine.Submit(ctx, singleStepDef(), core.OwnerContext{})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Pause(ctx, wf.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	f.sched.Tick(ctx)
	if len(f.client.Submissions()) != 0 {
		t.Error("paused workflow must not dispatch")
	}

	if err := f.engine.Resume(ctx, wf.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	f.sched.Tick(ctx)
	if len(f.client.Submissions()) != 1 {
		t.Error("resumed workflow did not dispatch")
	}
}

func TestCancelIsImmediateAndAdvisory(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	def := core.WorkflowDefinition{
		Name: "locked run",
		Steps: []core.StepDefinition{
			{Name: "move", Node: "arm", Action: "move", Locks: []string{"plate-1"}},
		},
	}
	wf, err := f.engine.Submit(ctx, def, core.OwnerContext{})
	if err != nil {
		t.Fatal(err)
	}
	f.sched.Tick(ctx) // step goes RUNNING and holds the lock

	if err := f.engine.Cancel(ctx, wf.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := f.engine.Get(ctx, wf.ID)
	if got.Status != core.WorkflowStatusCancelled {
		t.Errorf("status = %s, want CANCELLED immediately", got.Status)
	}
	if got.Steps[0].Status != core.StepStatusCancelled {
		t.Errorf("running step = %s, want CANCELLED", got.Steps[0].Status)
	}

	subs := f.client.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	cancels := f.client.Cancellations()
	if len(cancels) != 1 || cancels[0].ActionID != subs[0].ActionID {
		t.Errorf("cancellations = %+v, want one abort of %s", cancels, subs[0].ActionID)
	}
	if locked, _, _ := f.store.IsLocked(ctx, "plate-1"); locked {
		t.Error("cancel must release the step's locks")
	}

	if err := f.engine.Cancel(ctx, wf.ID); err == nil {
		t.Error("cancel of a terminal run should fail")
	}
}

func TestResourceRegistration(t *testing.T) {
	f := newEngineFixture(t)

	if err := f.engine.RegisterResource(core.Resource{ID: "carrier"}); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.RegisterResource(core.Resource{ID: "plate", ParentID: "carrier"}); err != nil {
		t.Fatal(err)
	}

	// A cycle through existing resources is rejected and rolled back.
	err := f.engine.RegisterResource(core.Resource{ID: "carrier", ParentID: "plate"})
	if !core.IsCategory(err, core.ErrCatState) {
		t.Fatalf("cycle err = %v, want state category", err)
	}
	r, ok := f.engine.Resource("carrier")
	if !ok || r.ParentID != "" {
		t.Errorf("carrier = %+v, want original restored", r)
	}
}

func TestAttachAndDetachResource(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	if err := f.store.PutLocation(ctx, &core.Location{ID: "slot", Name: "slot"}); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.AttachResource(ctx, "slot", "plate-1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	// Re-attaching the same resource is idempotent.
	if err := f.engine.AttachResource(ctx, "slot", "plate-1"); err != nil {
		t.Errorf("idempotent attach failed: %v", err)
	}
	// A different resource is a conflict.
	if err := f.engine.AttachResource(ctx, "slot", "plate-2"); !core.IsCategory(err, core.ErrCatState) {
		t.Errorf("occupied attach err = %v, want state conflict", err)
	}

	if err := f.engine.DetachResource(ctx, "slot"); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	loc, _ := f.engine.Location(ctx, "slot")
	if loc.Occupied() {
		t.Error("location still occupied after detach")
	}
}
