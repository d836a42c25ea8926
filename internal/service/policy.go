package service

import "github.com/labwire/workcell/internal/core"

// Candidate pairs a schedulable workflow with its next dispatchable step.
type Candidate struct {
	Workflow *core.Workflow
	Step     *core.Step
}

// SchedulingPolicy decides which of the tick's candidate steps dispatch,
// and in what order. The scheduler builds one candidate per schedulable
// workflow (its first non-terminal step); policies reorder or drop them
// but never invent new ones.
type SchedulingPolicy interface {
	Name() string
	SelectReadySteps(candidates []Candidate) []Candidate
}

// FIFOPolicy dispatches every candidate in submission order:
// first-ready-first-served, no arbitration beyond stable scan order.
type FIFOPolicy struct{}

// NewFIFOPolicy returns the default policy.
func NewFIFOPolicy() *FIFOPolicy {
	return &FIFOPolicy{}
}

// Name identifies the policy in logs.
func (p *FIFOPolicy) Name() string { return "fifo" }

// SelectReadySteps returns the candidates unchanged. The scheduler already
// lists workflows in submission order.
func (p *FIFOPolicy) SelectReadySteps(candidates []Candidate) []Candidate {
	return candidates
}

var _ SchedulingPolicy = (*FIFOPolicy)(nil)
