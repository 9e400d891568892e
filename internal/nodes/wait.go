package nodes

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/pkg/schema"
)

var waitFields = []schema.ConfigField{
	{Key: "duration", Type: TypeString, Required: true, Description: "How long to pause, e.g. 30s, 2h, 7d"},
}

// WaitExecutor pauses the execution for a fixed duration. The expiry sweep
// re-enters the node with a timeout decision, which routes to the default
// output.
type WaitExecutor struct {
	now func() time.Time
}

func NewWaitExecutor() *WaitExecutor {
	return &WaitExecutor{now: time.Now}
}

func (e *WaitExecutor) Kind() schema.NodeKind        { return schema.NodeKindWait }
func (e *WaitExecutor) Schema() []schema.ConfigField { return waitFields }

func (e *WaitExecutor) Validate(config map[string]any) error {
	if err := requireFields(waitFields, config); err != nil {
		return err
	}
	_, err := parseWaitDuration(configString(config, "duration"))
	return err
}

func (e *WaitExecutor) Execute(_ context.Context, in ExecContext) (*Result, error) {
	if decision, _ := decisionFor(in); decision == schema.DecisionTimeout {
		return &Result{OutputName: schema.OutputDefault}, nil
	}

	d, err := parseWaitDuration(configString(in.Config(), "duration"))
	if err != nil {
		return nil, err
	}

	until := e.now().UTC().Add(d)
	return &Result{Suspend: &Suspension{WaitUntil: &until, WaitFor: schema.WaitForTimer}}, nil
}

// parseWaitDuration accepts time.ParseDuration syntax plus a day suffix,
// so "7d" works alongside "90m".
func parseWaitDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "wait requires a non-empty 'duration'")
	}
	if n := len(raw); raw[n-1] == 'd' {
		days, err := time.ParseDuration(raw[:n-1] + "h")
		if err == nil && days > 0 {
			return days * 24, nil
		}
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid wait duration %q", raw).WithCause(err)
	}
	if d <= 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "wait duration %q must be positive", raw)
	}
	return d, nil
}
