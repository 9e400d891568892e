package nodes

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/pkg/schema"
)

// DefaultApprovalDays is the token lifetime when expires_in_days is unset.
const DefaultApprovalDays = 30

var approvalFields = []schema.ConfigField{
	{Key: "assigned_user_id", Type: TypeString, Description: "User asked to decide"},
	{Key: "assigned_group_id", Type: TypeString, Description: "Group asked to decide"},
	{Key: "message", Type: TypeString, Description: "Message shown on the approval page and email"},
	{Key: "expires_in_days", Type: TypeInteger, Description: "Token lifetime in days (default 30)"},
}

// IssueRequest carries everything the approval subsystem needs to mint and
// deliver a single-use token.
type IssueRequest struct {
	ExecutionID     string
	WorkflowID      string
	NodeID          string
	DocumentID      string
	AssignedUserID  string
	AssignedGroupID string
	Message         string
	ExpiresAt       time.Time
}

// Issuer mints approval tokens and sends the approval link. Issuing must be
// idempotent per (execution, node): re-entering a suspended approval node
// after a crash reuses the open token instead of minting a second one.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (token string, err error)
}

// ApprovalExecutor gates the execution on a human decision. On first entry it
// issues a token and suspends; when the engine re-enters it with a decision
// in the bag, it routes to the matching output.
type ApprovalExecutor struct {
	issuer Issuer
	now    func() time.Time
}

func NewApprovalExecutor(issuer Issuer) *ApprovalExecutor {
	return &ApprovalExecutor{issuer: issuer, now: time.Now}
}

func (e *ApprovalExecutor) Kind() schema.NodeKind        { return schema.NodeKindApproval }
func (e *ApprovalExecutor) Schema() []schema.ConfigField { return approvalFields }

func (e *ApprovalExecutor) Validate(config map[string]any) error {
	if err := requireFields(approvalFields, config); err != nil {
		return err
	}
	if days := configInt(config, "expires_in_days", DefaultApprovalDays); days < 1 {
		return schema.NewError(schema.ErrCodeValidation, "expires_in_days must be at least 1")
	}
	return nil
}

func (e *ApprovalExecutor) Execute(ctx context.Context, in ExecContext) (*Result, error) {
	if decision, comment := decisionFor(in); decision != "" {
		return decisionResult(in.Node.ID, decision, comment)
	}

	days := configInt(in.Config(), "expires_in_days", DefaultApprovalDays)
	expiresAt := e.now().UTC().Add(time.Duration(days) * 24 * time.Hour)

	_, err := e.issuer.Issue(ctx, IssueRequest{
		ExecutionID:     in.ExecutionID,
		WorkflowID:      in.WorkflowID,
		NodeID:          in.Node.ID,
		DocumentID:      in.DocumentID,
		AssignedUserID:  configString(in.Config(), "assigned_user_id"),
		AssignedGroupID: configString(in.Config(), "assigned_group_id"),
		Message:         configString(in.Config(), "message"),
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"issue approval token: %s", err.Error()).WithCause(err).WithNode(in.Node.ID)
	}

	return &Result{Suspend: &Suspension{WaitUntil: &expiresAt, WaitFor: schema.WaitForApproval}}, nil
}

func decisionResult(nodeID, decision, comment string) (*Result, error) {
	var output string
	switch decision {
	case schema.DecisionApproved:
		output = schema.OutputApproved
	case schema.DecisionRejected:
		output = schema.OutputRejected
	case schema.DecisionTimeout:
		output = schema.OutputTimeout
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown decision %q", decision).WithNode(nodeID)
	}
	data := map[string]any{
		"approval_decision": decision,
	}
	if comment != "" {
		data["approval_comment"] = comment
	}
	return &Result{OutputName: output, Data: data}, nil
}
