package core

import "testing"

func twoStepDefinition() WorkflowDefinition {
	return WorkflowDefinition{
		Name: "elisa",
		Steps: []StepDefinition{
			{Name: "wash", Node: "washer", Action: "wash"},
			{Name: "read", Node: "reader", Action: "read_absorbance"},
		},
	}
}

func TestNewWorkflowQueuesAllSteps(t *testing.T) {
	wf := NewWorkflow("run-1", twoStepDefinition(), OwnerContext{UserID: "jdoe"})

	if wf.Status != WorkflowStatusQueued {
		t.Fatalf("status = %s, want QUEUED", wf.Status)
	}
	if len(wf.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(wf.Steps))
	}
	for _, s := range wf.Steps {
		if s.Status != StepStatusQueued {
			t.Errorf("step %s status = %s, want QUEUED", s.ID, s.Status)
		}
	}
	if wf.Steps[0].ID == wf.Steps[1].ID {
		t.Error("step ids must be unique")
	}
}

func TestCurrentStepAdvancesInOrder(t *testing.T) {
	wf := NewWorkflow("run-1", twoStepDefinition(), OwnerContext{})

	first := wf.CurrentStep()
	if first == nil || first.Definition.Name != "wash" {
		t.Fatalf("CurrentStep = %v, want wash", first)
	}

	_ = first.MarkReady()
	_ = first.MarkRunning("a1", nil)
	_ = first.MarkSucceeded(nil)

	second := wf.CurrentStep()
	if second == nil || second.Definition.Name != "read" {
		t.Fatalf("CurrentStep after first = %v, want read", second)
	}

	_ = second.MarkFailed("detector fault")
	if wf.CurrentStep() != nil {
		t.Error("CurrentStep should be nil when all steps are terminal")
	}
}

func TestWorkflowPauseResume(t *testing.T) {
	wf := NewWorkflow("run-1", twoStepDefinition(), OwnerContext{})

	if err := wf.MarkPaused(); err != nil {
		t.Fatalf("pause from QUEUED: %v", err)
	}
	if wf.IsSchedulable() {
		t.Error("paused workflow must not be schedulable")
	}
	if err := wf.MarkResumed(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if wf.Status != WorkflowStatusRunning {
		t.Errorf("status after resume = %s, want RUNNING", wf.Status)
	}
	if err := wf.MarkResumed(); err == nil {
		t.Error("resume of a running workflow should fail")
	}
}

func TestWorkflowCancelCancelsSteps(t *testing.T) {
	wf := NewWorkflow("run-1", twoStepDefinition(), OwnerContext{})
	_ = wf.Steps[0].MarkReady()
	_ = wf.Steps[0].MarkRunning("a1", nil)
	_ = wf.Steps[0].MarkSucceeded(nil)

	if err := wf.MarkCancelled(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if wf.Steps[0].Status != StepStatusSucceeded {
		t.Errorf("terminal step must keep its state, got %s", wf.Steps[0].Status)
	}
	if wf.Steps[1].Status != StepStatusCancelled {
		t.Errorf("pending step status = %s, want CANCELLED", wf.Steps[1].Status)
	}
	if err := wf.MarkCancelled(); err == nil {
		t.Error("cancel of a cancelled workflow should fail")
	}
}

func TestWorkflowTerminalImmutable(t *testing.T) {
	wf := NewWorkflow("run-1", twoStepDefinition(), OwnerContext{})
	_ = wf.MarkFailed("no transfer path")

	if err := wf.MarkRunning(); err == nil {
		t.Error("MarkRunning from FAILED should fail")
	}
	if err := wf.MarkPaused(); err == nil {
		t.Error("MarkPaused from FAILED should fail")
	}
}

func TestExpandStepSplicesInPlace(t *testing.T) {
	def := WorkflowDefinition{
		Name: "prep",
		Steps: []StepDefinition{
			{Name: "seal", Node: "sealer", Action: "seal"},
			{Name: "move", Action: TransferAction},
			{Name: "incubate", Node: "incubator", Action: "incubate"},
		},
	}
	wf := NewWorkflow("run-1", def, OwnerContext{})
	transferID := wf.Steps[1].ID

	legs := []*Step{
		NewStep("run-1-1-t0", StepDefinition{Name: "leg 1", Node: "arm", Action: "pick_and_place"}),
		NewStep("run-1-1-t1", StepDefinition{Name: "leg 2", Node: "arm", Action: "pick_and_place"}),
	}
	if err := wf.ExpandStep(transferID, legs); err != nil {
		t.Fatalf("ExpandStep: %v", err)
	}

	want := []string{"seal", "leg 1", "leg 2", "incubate"}
	if len(wf.Steps) != len(want) {
		t.Fatalf("steps = %d, want %d", len(wf.Steps), len(want))
	}
	for i, name := range want {
		if wf.Steps[i].Definition.Name != name {
			t.Errorf("step %d = %q, want %q", i, wf.Steps[i].Definition.Name, name)
		}
	}
}

func TestExpandStepRejectsRunningOrMissing(t *testing.T) {
	wf := NewWorkflow("run-1", twoStepDefinition(), OwnerContext{})
	_ = wf.Steps[0].MarkReady()
	_ = wf.Steps[0].MarkRunning("a1", nil)

	if err := wf.ExpandStep(wf.Steps[0].ID, nil); err == nil {
		t.Error("expanding a running step should fail")
	}
	if err := wf.ExpandStep("nope", nil); err == nil {
		t.Error("expanding a missing step should fail")
	}
}

func TestWorkflowDefinitionValidate(t *testing.T) {
	if err := (&WorkflowDefinition{Name: "x"}).Validate(); err == nil {
		t.Error("empty step list should fail validation")
	}
	if err := (&WorkflowDefinition{Steps: []StepDefinition{{Node: "a", Action: "b"}}}).Validate(); err == nil {
		t.Error("missing name should fail validation")
	}
	good := twoStepDefinition()
	if err := good.Validate(); err != nil {
		t.Errorf("valid definition rejected: %v", err)
	}
}
