package engine

import (
	"context"
	"sync"

	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// TransitionHook is called before or after an execution state transition.
type TransitionHook func(from, to schema.ExecutionStatus) error

// EventAppender is satisfied by the Store; the FSM emits lifecycle events on
// transitions through it.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

type hookKey struct {
	from, to schema.ExecutionStatus
}

// ExecutionFSM validates execution lifecycle transitions and emits the
// corresponding event log entries. The caller persists the new status.
type ExecutionFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewExecutionFSM creates an ExecutionFSM that emits events via the appender.
func NewExecutionFSM(appender EventAppender) *ExecutionFSM {
	return &ExecutionFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *ExecutionFSM) OnBefore(from, to schema.ExecutionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *ExecutionFSM) OnAfter(from, to schema.ExecutionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and records an execution state transition. It emits
// the corresponding event; persisting the new status stays with the caller.
func (f *ExecutionFSM) Transition(ctx context.Context, executionID string, from, to schema.ExecutionStatus, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !IsValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid execution transition: %s -> %s", from, to).
			WithDetails(map[string]any{"execution_id": executionID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if eventType := executionEventType(to); eventType != "" {
		event := &store.Event{
			ExecutionID: executionID,
			Type:        eventType,
			Payload:     payload,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit execution event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	return nil
}

// ValidTransitions defines the allowed execution state transitions.
var ValidTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionStatusPending: {
		schema.ExecutionStatusRunning,
		schema.ExecutionStatusCancelled,
	},
	schema.ExecutionStatusRunning: {
		schema.ExecutionStatusWaiting,
		schema.ExecutionStatusCompleted,
		schema.ExecutionStatusFailed,
		schema.ExecutionStatusCancelled,
	},
	schema.ExecutionStatusWaiting: {
		schema.ExecutionStatusRunning,
		schema.ExecutionStatusFailed,
		schema.ExecutionStatusCancelled,
	},
	// Terminal states admit no transitions.
	schema.ExecutionStatusCompleted: {},
	schema.ExecutionStatusFailed:    {},
	schema.ExecutionStatusCancelled: {},
}

// IsValidTransition reports whether from -> to is an allowed transition.
func IsValidTransition(from, to schema.ExecutionStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func executionEventType(to schema.ExecutionStatus) string {
	switch to {
	case schema.ExecutionStatusRunning:
		return schema.EventExecutionStarted
	case schema.ExecutionStatusWaiting:
		return schema.EventExecutionSuspended
	case schema.ExecutionStatusCompleted:
		return schema.EventExecutionCompleted
	case schema.ExecutionStatusFailed:
		return schema.EventExecutionFailed
	case schema.ExecutionStatusCancelled:
		return schema.EventExecutionCancelled
	default:
		return ""
	}
}
