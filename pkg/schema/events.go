package schema

// Lifecycle event names delivered by document collaborators.
const (
	EventDocumentAdded     = "document.added"
	EventTagAdded          = "tag.added"
	EventValidationChanged = "document.validation_changed"
	EventManual            = "manual"
	EventUpload            = "upload"
	EventScan              = "scan"
)

// Event type constants for the append-only execution event log.
const (
	EventExecutionCreated   = "execution_created"
	EventExecutionStarted   = "execution_started"
	EventExecutionSuspended = "execution_suspended"
	EventExecutionResumed   = "execution_resumed"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventExecutionCancelled = "execution_cancelled"
	EventExecutionExpired   = "execution_expired"

	EventNodeEntered = "node_entered"

	EventTokenIssued      = "token_issued"
	EventDecisionRecorded = "decision_recorded"
	EventNotificationSent = "notification_sent"
)

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// What a waiting execution is suspended on.
const (
	WaitForApproval = "approval"
	WaitForTimer    = "timer"
)

// Decision values an approval resolution may carry.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionTimeout  = "timeout"
)

// Context bag keys written by the engine on resume. Node executors consult
// these on re-entry instead of re-performing their side effect.
const (
	BagKeyDecision        = "decision"
	BagKeyDecisionComment = "decision_comment"
	BagKeyDecisionNodeID  = "decision_node_id"
	BagKeyEventName       = "event_name"
)
