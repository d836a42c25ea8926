package core

// Placeholder keys substituted when a transfer template is instantiated
// for one leg of a planned path.
const (
	TransferArgSource      = "source"
	TransferArgDestination = "destination"
	TransferArgResource    = "resource_id"
)

// TransferTemplate is a parameterized workflow fragment that moves material
// between two locations via one node's capability. An edge between two
// locations exists for this template iff both locations carry a
// representation for NodeName.
type TransferTemplate struct {
	Name     string           `json:"name"`
	NodeName string           `json:"node_name"`
	Steps    []StepDefinition `json:"steps"`
	Cost     float64          `json:"cost"`
}

// DefaultTransferCost is used when a template declares no cost.
const DefaultTransferCost = 1.0

// Validate checks template invariants.
func (t *TransferTemplate) Validate() error {
	if t.Name == "" {
		return ErrValidation("TEMPLATE_NAME_REQUIRED", "transfer template name cannot be empty")
	}
	if t.NodeName == "" {
		return ErrValidation("TEMPLATE_NODE_REQUIRED", "transfer template node_name cannot be empty")
	}
	if len(t.Steps) == 0 {
		return ErrValidation("TEMPLATE_EMPTY", "transfer template must have at least one step")
	}
	return nil
}

// EffectiveCost returns the template cost, defaulting when unset.
func (t *TransferTemplate) EffectiveCost() float64 {
	if t.Cost <= 0 {
		return DefaultTransferCost
	}
	return t.Cost
}

// TransferEdge is one derived edge of the transfer graph. Edges are
// rebuilt from locations and templates whenever configuration changes,
// never persisted.
type TransferEdge struct {
	Source      LocationID
	Destination LocationID
	Template    *TransferTemplate
	Cost        float64
}

// TransferPlan is a resolved multi-leg path plus the composed definition
// ready for submission.
type TransferPlan struct {
	Legs       []TransferEdge
	Definition WorkflowDefinition
	TotalCost  float64
}
