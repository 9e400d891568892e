package notify

import (
	"context"
	"strings"

	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// EventNotifyLog implements the notify dedupe log on top of the execution
// event log: a notification is "sent" once a notification_sent event exists
// for the (execution, node) pair.
type EventNotifyLog struct {
	store store.Store
}

// NewEventNotifyLog creates the store-backed dedupe log.
func NewEventNotifyLog(st store.Store) *EventNotifyLog {
	return &EventNotifyLog{store: st}
}

func (l *EventNotifyLog) Sent(ctx context.Context, executionID, nodeID string) (bool, error) {
	events, err := l.store.GetEventsByType(ctx, schema.EventNotificationSent, store.EventFilter{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Limit:       1,
	})
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

func (l *EventNotifyLog) MarkSent(ctx context.Context, executionID, nodeID string, recipients []string) error {
	return l.store.AppendEvent(ctx, &store.Event{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Type:        schema.EventNotificationSent,
		Payload:     map[string]any{"recipients": strings.Join(recipients, ", ")},
	})
}
