package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow definitions
	CreateWorkflow(ctx context.Context, def *WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	GetWorkflowByName(ctx context.Context, name string) (*WorkflowRecord, error)
	UpdateWorkflow(ctx context.Context, def *WorkflowRecord) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// ClaimResume transitions an execution from waiting to running and merges
	// the given entries into its context bag, as one atomic unit. A concurrent
	// claimer observes status != waiting and receives a NOT_WAITING error.
	ClaimResume(ctx context.Context, id string, inject map[string]any) (*Execution, error)

	// ListExpiredWaiting returns waiting executions whose deadline has elapsed.
	ListExpiredWaiting(ctx context.Context, now time.Time) ([]*Execution, error)

	// Approval tokens
	CreateToken(ctx context.Context, token *ApprovalToken) error
	GetTokenByValue(ctx context.Context, value string) (*ApprovalToken, error)
	OpenTokenForNode(ctx context.Context, executionID, nodeID string) (*ApprovalToken, error)

	// ConsumeToken resolves an approval token: it marks the token responded,
	// appends a decision history row, and claims the owning execution
	// (waiting -> running) with the decision injected into its context bag.
	// All of it happens in one transaction; the second of two concurrent
	// callers receives ALREADY_PROCESSED and mutates nothing.
	ConsumeToken(ctx context.Context, value, decision, comment string, now time.Time) (*ApprovalToken, error)

	// Decision history (append-only, written by ConsumeToken and the engine)
	AppendDecision(ctx context.Context, rec *DecisionRecord) error
	ListDecisions(ctx context.Context, executionID string) ([]*DecisionRecord, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, executionID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
