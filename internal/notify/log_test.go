package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

func TestEventNotifyLog(t *testing.T) {
	st := store.NewMemoryStore()
	log := NewEventNotifyLog(st)
	ctx := context.Background()

	sent, err := log.Sent(ctx, "exec-1", "notify-1")
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, log.MarkSent(ctx, "exec-1", "notify-1", []string{"a@example.com", "b@example.com"}))

	sent, err = log.Sent(ctx, "exec-1", "notify-1")
	require.NoError(t, err)
	assert.True(t, sent)

	// Scoped per node and per execution.
	sent, err = log.Sent(ctx, "exec-1", "notify-2")
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = log.Sent(ctx, "exec-2", "notify-1")
	require.NoError(t, err)
	assert.False(t, sent)

	events, err := st.GetEventsByType(ctx, schema.EventNotificationSent, store.EventFilter{ExecutionID: "exec-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a@example.com, b@example.com", events[0].Payload["recipients"])
}
