package nodes

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/pkg/schema"
)

// Executor runs one node kind within an execution step.
type Executor interface {
	Kind() schema.NodeKind
	Schema() []schema.ConfigField
	Validate(config map[string]any) error
	Execute(ctx context.Context, in ExecContext) (*Result, error)
}

// ExecContext is the data an executor sees at execution time. Bag is a
// read-only view of the execution's context; mutations travel back through
// Result.Data.
type ExecContext struct {
	ExecutionID string
	WorkflowID  string
	DocumentID  string
	Node        schema.WorkflowNode
	Document    *schema.Document
	Bag         map[string]any
}

// Config returns the node's configuration map, never nil.
func (in ExecContext) Config() map[string]any {
	if in.Node.Config == nil {
		return map[string]any{}
	}
	return in.Node.Config
}

// Result is the outcome of a node execution.
type Result struct {
	// OutputName selects the outgoing connection; "" means "default".
	OutputName string
	// Data is merged into the execution's context bag.
	Data map[string]any
	// Suspend, when set, pauses the execution instead of routing onward.
	Suspend *Suspension
}

// Suspension is an executor's request to pause the execution.
type Suspension struct {
	WaitUntil *time.Time
	WaitFor   string
}

// Output returns the effective output name of the result.
func (r *Result) Output() string {
	if r.OutputName == "" {
		return schema.OutputDefault
	}
	return r.OutputName
}

// decisionFor returns the decision injected for this node on resume, or ""
// when the bag carries no decision addressed to it.
func decisionFor(in ExecContext) (decision, comment string) {
	nodeID, _ := in.Bag[schema.BagKeyDecisionNodeID].(string)
	if nodeID != in.Node.ID {
		return "", ""
	}
	decision, _ = in.Bag[schema.BagKeyDecision].(string)
	comment, _ = in.Bag[schema.BagKeyDecisionComment].(string)
	return decision, comment
}
