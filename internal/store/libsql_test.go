package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedWorkflow(t *testing.T, s *LibSQLStore, name string) *WorkflowRecord {
	t.Helper()
	def := &WorkflowRecord{WorkflowDefinition: schema.WorkflowDefinition{
		ID:      uuid.NewString(),
		Name:    name,
		Enabled: true,
		Version: 1,
		Nodes: []schema.WorkflowNode{
			{ID: "start", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "end", Kind: schema.NodeKindSetVariable, Config: map[string]any{"name": "x", "expression": "1"}},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "c1", FromNodeID: "start", ToNodeID: "end", Order: 1},
		},
	}}
	require.NoError(t, s.CreateWorkflow(context.Background(), def))
	return def
}

func seedExecution(t *testing.T, s *LibSQLStore, workflowID string, status schema.ExecutionStatus) *Execution {
	t.Helper()
	exec := &Execution{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		Status:        status,
		CurrentNodeID: "start",
		Context:       map[string]any{"seed": true},
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.CreateExecution(context.Background(), exec))
	return exec
}

// --- Workflow tests ---

func TestWorkflow_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedWorkflow(t, s, "invoice approval")

	got, err := s.GetWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "invoice approval", got.Name)
	assert.True(t, got.Enabled)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, schema.NodeKindManual, got.Nodes[0].Kind)
	assert.True(t, got.Nodes[0].IsEntryPoint)
	require.Len(t, got.Connections, 1)
	assert.Equal(t, "end", got.Connections[0].ToNodeID)

	byName, err := s.GetWorkflowByName(ctx, "invoice approval")
	require.NoError(t, err)
	assert.Equal(t, def.ID, byName.ID)
}

func TestWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkflow(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestWorkflow_NameConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflow(t, s, "unique name")

	dup := &WorkflowRecord{WorkflowDefinition: schema.WorkflowDefinition{
		ID:    uuid.NewString(),
		Name:  "unique name",
		Nodes: []schema.WorkflowNode{{ID: "start", Kind: schema.NodeKindManual, IsEntryPoint: true}},
	}}
	err := s.CreateWorkflow(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestWorkflow_UpdateBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedWorkflow(t, s, "versioned")

	def.Description = "second draft"
	require.NoError(t, s.UpdateWorkflow(ctx, def))

	got, err := s.GetWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "second draft", got.Description)
}

func TestWorkflow_ListFiltersEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflow(t, s, "alpha")
	disabled := &WorkflowRecord{WorkflowDefinition: schema.WorkflowDefinition{
		ID:    uuid.NewString(),
		Name:  "beta",
		Nodes: []schema.WorkflowNode{{ID: "start", Kind: schema.NodeKindManual, IsEntryPoint: true}},
	}}
	require.NoError(t, s.CreateWorkflow(ctx, disabled))

	enabled := true
	defs, err := s.ListWorkflows(ctx, WorkflowFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "alpha", defs[0].Name)

	all, err := s.ListWorkflows(ctx, WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWorkflow_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedWorkflow(t, s, "doomed")

	require.NoError(t, s.DeleteWorkflow(ctx, def.ID))
	_, err := s.GetWorkflow(ctx, def.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	assert.Error(t, s.DeleteWorkflow(ctx, def.ID))
}

// --- Execution tests ---

func TestExecution_CreateGetUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "exec home")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusPending)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusPending, got.Status)
	assert.Equal(t, map[string]any{"seed": true}, got.Context)

	running := schema.ExecutionStatusRunning
	node := "end"
	require.NoError(t, s.UpdateExecution(ctx, exec.ID, ExecutionUpdate{
		Status:        &running,
		CurrentNodeID: &node,
		Context:       map[string]any{"seed": true, "step": float64(2)},
	}))

	got, err = s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusRunning, got.Status)
	assert.Equal(t, "end", got.CurrentNodeID)
	assert.Equal(t, float64(2), got.Context["step"])
}

func TestExecution_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	running := schema.ExecutionStatusRunning
	err := s.UpdateExecution(context.Background(), "ghost", ExecutionUpdate{Status: &running})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestExecution_ClaimResume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "claims")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)

	claimed, err := s.ClaimResume(ctx, exec.ID, map[string]any{
		schema.BagKeyDecision: schema.DecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusRunning, claimed.Status)
	assert.Equal(t, schema.DecisionApproved, claimed.Context[schema.BagKeyDecision])
	assert.Equal(t, true, claimed.Context["seed"])

	// The second claim loses.
	_, err = s.ClaimResume(ctx, exec.ID, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotWaiting, schema.CodeOf(err))
}

func TestExecution_ListExpiredWaiting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "expiry")

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	waitFor := schema.WaitForTimer
	require.NoError(t, s.UpdateExecution(ctx, expired.ID, ExecutionUpdate{
		WaitingUntil: &past, WaitingFor: &waitFor,
	}))

	pending := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	require.NoError(t, s.UpdateExecution(ctx, pending.ID, ExecutionUpdate{
		WaitingUntil: &future, WaitingFor: &waitFor,
	}))

	due, err := s.ListExpiredWaiting(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)
}

func TestExecution_ListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "filters")
	seedExecution(t, s, wf.ID, schema.ExecutionStatusCompleted)
	seedExecution(t, s, wf.ID, schema.ExecutionStatusRunning)

	completed := schema.ExecutionStatusCompleted
	execs, err := s.ListExecutions(ctx, ExecutionFilter{WorkflowID: wf.ID, Status: &completed})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, schema.ExecutionStatusCompleted, execs[0].Status)
}

// --- Approval token tests ---

func seedToken(t *testing.T, s *LibSQLStore, executionID string, expiresAt time.Time) *ApprovalToken {
	t.Helper()
	token := &ApprovalToken{
		ID:             uuid.NewString(),
		Token:          uuid.NewString(),
		ExecutionID:    executionID,
		NodeID:         "gate",
		AssignedUserID: "alice@example.com",
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, s.CreateToken(context.Background(), token))
	return token
}

func TestToken_GetByValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "tokens")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	token := seedToken(t, s, exec.ID, time.Now().UTC().Add(time.Hour))

	got, err := s.GetTokenByValue(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ExecutionID)
	assert.Equal(t, "alice@example.com", got.AssignedUserID)
	assert.False(t, got.Responded())

	_, err = s.GetTokenByValue(ctx, "bogus")
	assert.Equal(t, schema.ErrCodeInvalidToken, schema.CodeOf(err))
}

func TestToken_OpenTokenForNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "open tokens")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)

	_, err := s.OpenTokenForNode(ctx, exec.ID, "gate")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))

	token := seedToken(t, s, exec.ID, time.Now().UTC().Add(time.Hour))
	open, err := s.OpenTokenForNode(ctx, exec.ID, "gate")
	require.NoError(t, err)
	assert.Equal(t, token.ID, open.ID)
}

func TestToken_ConsumeResumesExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "consume")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	token := seedToken(t, s, exec.ID, time.Now().UTC().Add(time.Hour))

	consumed, err := s.ConsumeToken(ctx, token.Token, schema.DecisionApproved, "fine by me", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, schema.DecisionApproved, consumed.ResponseAction)
	assert.True(t, consumed.Responded())

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusRunning, got.Status)
	assert.Equal(t, schema.DecisionApproved, got.Context[schema.BagKeyDecision])
	assert.Equal(t, "gate", got.Context[schema.BagKeyDecisionNodeID])
	assert.Equal(t, "fine by me", got.Context[schema.BagKeyDecisionComment])

	decisions, err := s.ListDecisions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, token.ID, decisions[0].TokenID)
}

func TestToken_ConsumeIsSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "single use")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	token := seedToken(t, s, exec.ID, time.Now().UTC().Add(time.Hour))

	_, err := s.ConsumeToken(ctx, token.Token, schema.DecisionApproved, "", time.Now().UTC())
	require.NoError(t, err)

	_, err = s.ConsumeToken(ctx, token.Token, schema.DecisionRejected, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAlreadyProcessed, schema.CodeOf(err))

	// The first decision stands.
	got, err := s.GetTokenByValue(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, schema.DecisionApproved, got.ResponseAction)
}

func TestToken_ConsumeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "stale")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	token := seedToken(t, s, exec.ID, time.Now().UTC().Add(-time.Hour))

	_, err := s.ConsumeToken(ctx, token.Token, schema.DecisionApproved, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExpired, schema.CodeOf(err))

	// Nothing was consumed or resumed.
	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusWaiting, got.Status)
}

func TestToken_ConsumeUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ConsumeToken(context.Background(), "bogus", schema.DecisionApproved, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidToken, schema.CodeOf(err))
}

func TestToken_ConsumeOnResumedExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "raced")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusWaiting)
	token := seedToken(t, s, exec.ID, time.Now().UTC().Add(time.Hour))

	// The sweep claimed the execution first.
	_, err := s.ClaimResume(ctx, exec.ID, nil)
	require.NoError(t, err)

	_, err = s.ConsumeToken(ctx, token.Token, schema.DecisionApproved, "", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAlreadyProcessed, schema.CodeOf(err))
}

// --- Event log tests ---

func TestEvents_SequencePerExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "events")
	a := seedExecution(t, s, wf.ID, schema.ExecutionStatusRunning)
	b := seedExecution(t, s, wf.ID, schema.ExecutionStatusRunning)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &Event{ExecutionID: a.ID, Type: schema.EventNodeEntered}))
	}
	require.NoError(t, s.AppendEvent(ctx, &Event{ExecutionID: b.ID, Type: schema.EventExecutionCreated}))

	eventsA, err := s.GetEvents(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, eventsA, 3)
	for i, e := range eventsA {
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	eventsB, err := s.GetEvents(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, eventsB, 1)
	assert.Equal(t, int64(1), eventsB[0].Sequence)

	tail, err := s.GetEvents(ctx, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Sequence)
}

func TestEvents_GetByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s, "typed events")
	exec := seedExecution(t, s, wf.ID, schema.ExecutionStatusRunning)

	require.NoError(t, s.AppendEvent(ctx, &Event{
		ExecutionID: exec.ID, NodeID: "mail", Type: schema.EventNotificationSent,
		Payload: map[string]any{"recipients": []any{"ops@example.com"}},
	}))
	require.NoError(t, s.AppendEvent(ctx, &Event{ExecutionID: exec.ID, Type: schema.EventNodeEntered}))

	sent, err := s.GetEventsByType(ctx, schema.EventNotificationSent, EventFilter{
		ExecutionID: exec.ID, NodeID: "mail", Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, schema.EventNotificationSent, sent[0].Type)

	none, err := s.GetEventsByType(ctx, schema.EventNotificationSent, EventFilter{
		ExecutionID: exec.ID, NodeID: "other",
	})
	require.NoError(t, err)
	assert.Empty(t, none)
}
