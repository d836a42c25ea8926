package core

// ConditionKind names one of the closed set of step predicates.
type ConditionKind string

const (
	// ConditionResourcePresent holds when the named location has the given
	// resource attached (or any resource, if ResourceID is empty).
	ConditionResourcePresent ConditionKind = "resource_present"

	// ConditionResourceAbsent holds when the named location is unoccupied.
	ConditionResourceAbsent ConditionKind = "resource_absent"

	// ConditionNodeStatus holds when the target node's last-known status
	// equals the given status.
	ConditionNodeStatus ConditionKind = "node_status"

	// ConditionArg holds when a step argument compares true against a
	// literal value.
	ConditionArg ConditionKind = "arg"
)

// ConditionOp is the comparison operator for arg conditions.
type ConditionOp string

const (
	OpEq     ConditionOp = "eq"
	OpNe     ConditionOp = "ne"
	OpExists ConditionOp = "exists"
)

// Condition is one predicate gating dispatch of a step. Evaluation is
// side-effect free; an unknown or unreachable data source makes the
// condition false, never an error.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// resource_present / resource_absent
	Location   LocationID `json:"location,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`

	// node_status
	Node   NodeID     `json:"node,omitempty"`
	Status NodeStatus `json:"status,omitempty"`

	// arg
	Arg   string      `json:"arg,omitempty"`
	Op    ConditionOp `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// Validate checks that the condition names a known kind with the fields
// that kind requires.
func (c *Condition) Validate() error {
	switch c.Kind {
	case ConditionResourcePresent, ConditionResourceAbsent:
		if c.Location == "" {
			return ErrValidation("CONDITION_LOCATION_REQUIRED", "location condition requires a location id")
		}
	case ConditionNodeStatus:
		if c.Node == "" {
			return ErrValidation("CONDITION_NODE_REQUIRED", "node_status condition requires a node id")
		}
	case ConditionArg:
		if c.Arg == "" {
			return ErrValidation("CONDITION_ARG_REQUIRED", "arg condition requires an argument name")
		}
		switch c.Op {
		case OpEq, OpNe, OpExists:
		default:
			return ErrValidation("CONDITION_OP_INVALID", "arg condition operator must be eq, ne or exists")
		}
	default:
		return ErrValidation("CONDITION_KIND_INVALID", "unknown condition kind")
	}
	return nil
}
