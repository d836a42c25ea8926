package service

import (
	"context"
	"fmt"

	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/logging"
)

// ConditionEvaluator gates step dispatch. Evaluation is side-effect free
// and re-runs every tick; an unknown or unreachable data source makes the
// predicate false so the workflow stalls instead of crashing the tick.
type ConditionEvaluator struct {
	store  core.RunStore
	nodes  *NodeStateCache
	logger *logging.Logger
}

// NewConditionEvaluator creates an evaluator over the given state sources.
func NewConditionEvaluator(store core.RunStore, nodes *NodeStateCache, logger *logging.Logger) *ConditionEvaluator {
	return &ConditionEvaluator{
		store:  store,
		nodes:  nodes,
		logger: logger,
	}
}

// IsSatisfied reports whether every condition on the step holds.
func (e *ConditionEvaluator) IsSatisfied(ctx context.Context, step *core.Step) bool {
	for i := range step.Definition.Conditions {
		if !e.evaluate(ctx, step, &step.Definition.Conditions[i]) {
			return false
		}
	}
	return true
}

func (e *ConditionEvaluator) evaluate(ctx context.Context, step *core.Step, c *core.Condition) bool {
	switch c.Kind {
	case core.ConditionResourcePresent:
		loc, err := e.store.GetLocation(ctx, c.Location)
		if err != nil {
			e.logger.Debug("condition source unavailable", "kind", c.Kind, "location", c.Location, "error", err)
			return false
		}
		if c.ResourceID != "" {
			return loc.ResourceID == c.ResourceID
		}
		return loc.Occupied()

	case core.ConditionResourceAbsent:
		loc, err := e.store.GetLocation(ctx, c.Location)
		if err != nil {
			e.logger.Debug("condition source unavailable", "kind", c.Kind, "location", c.Location, "error", err)
			return false
		}
		return !loc.Occupied()

	case core.ConditionNodeStatus:
		n, ok := e.nodes.Get(c.Node)
		if !ok {
			return false
		}
		want := c.Status
		if want == "" {
			want = core.NodeStatusReady
		}
		return n.Status == want

	case core.ConditionArg:
		return evaluateArg(step, c)

	default:
		// Unknown kinds are conservative: never satisfied.
		return false
	}
}

func evaluateArg(step *core.Step, c *core.Condition) bool {
	value, exists := step.Definition.Args[c.Arg]
	switch c.Op {
	case core.OpExists:
		return exists
	case core.OpEq:
		return exists && literalEqual(value, c.Value)
	case core.OpNe:
		return exists && !literalEqual(value, c.Value)
	default:
		return false
	}
}

// literalEqual compares values the way they round-trip through JSON, so
// "5" from YAML config and 5.0 from a JSON body compare sanely only when
// they are the same kind. Everything falls back to string formatting.
func literalEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
