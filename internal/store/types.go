package store

import (
	"time"

	"github.com/docuflow/docuflow/pkg/schema"
)

// WorkflowRecord is the persisted representation of a workflow definition.
// Embedding keeps the graph types in pkg/schema shared with validation and
// the designer API.
type WorkflowRecord struct {
	schema.WorkflowDefinition
}

// Execution is the durable, resumable instance of a graph traversal.
type Execution struct {
	ID            string                 `json:"id"`
	WorkflowID    string                 `json:"workflow_id"`
	DocumentID    string                 `json:"document_id,omitempty"`
	Status        schema.ExecutionStatus `json:"status"`
	CurrentNodeID string                 `json:"current_node_id"`
	Context       map[string]any         `json:"context,omitempty"`
	WaitingUntil  *time.Time             `json:"waiting_until,omitempty"`
	WaitingFor    string                 `json:"waiting_for,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ApprovalToken is a single-use, time-limited credential tied to a suspended
// execution. RespondedAt marks the token consumed.
type ApprovalToken struct {
	ID              string     `json:"id"`
	Token           string     `json:"token"`
	ExecutionID     string     `json:"execution_id"`
	NodeID          string     `json:"node_id"`
	DocumentID      string     `json:"document_id,omitempty"`
	AssignedUserID  string     `json:"assigned_user_id,omitempty"`
	AssignedGroupID string     `json:"assigned_group_id,omitempty"`
	Message         string     `json:"message,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ResponseAction  string     `json:"response_action,omitempty"`
	ResponseComment string     `json:"response_comment,omitempty"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Responded reports whether the token has already been consumed.
func (t *ApprovalToken) Responded() bool { return t.RespondedAt != nil }

// Expired reports whether the token's window has passed at the given instant.
func (t *ApprovalToken) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }

// DecisionRecord is one immutable entry of the approval decision log,
// independent of the mutable execution row, for audit replay.
type DecisionRecord struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	TokenID     string    `json:"token_id,omitempty"`
	Decision    string    `json:"decision"`
	Comment     string    `json:"comment,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Event is an immutable entry in the execution event log.
type Event struct {
	ID          int64          `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id,omitempty"`
	Type        string         `json:"event_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Sequence    int64          `json:"sequence"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflow definitions.
type WorkflowFilter struct {
	Enabled *bool `json:"enabled,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowID string                  `json:"workflow_id,omitempty"`
	DocumentID string                  `json:"document_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution.
// Context, when non-nil, replaces the stored bag wholesale: the engine owns
// the bag and always writes it back in full.
type ExecutionUpdate struct {
	Status        *schema.ExecutionStatus `json:"status,omitempty"`
	CurrentNodeID *string                 `json:"current_node_id,omitempty"`
	Context       map[string]any          `json:"context,omitempty"`
	WaitingUntil  *time.Time              `json:"waiting_until,omitempty"`
	WaitingFor    *string                 `json:"waiting_for,omitempty"`
	ClearWaiting  bool                    `json:"clear_waiting,omitempty"`
	ErrorMessage  *string                 `json:"error_message,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	ExecutionID string     `json:"execution_id,omitempty"`
	NodeID      string     `json:"node_id,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}
