package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docuflow/docuflow/pkg/schema"
)

// MemoryStore is an in-memory Store implementation used in tests and for
// exercising concurrent-resume races deterministically. A single mutex gives
// every composite operation the same atomicity the SQL store gets from
// transactions.
type MemoryStore struct {
	mu        sync.Mutex
	workflows map[string]*WorkflowRecord
	execs     map[string]*Execution
	tokens    map[string]*ApprovalToken // keyed by token value
	decisions []*DecisionRecord
	events    []*Event
	nextID    int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*WorkflowRecord),
		execs:     make(map[string]*Execution),
		tokens:    make(map[string]*ApprovalToken),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

// --- Workflow definitions ---

func (s *MemoryStore) CreateWorkflow(_ context.Context, def *WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workflows {
		if strings.EqualFold(w.Name, def.Name) {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow name %q already in use", def.Name)
		}
	}
	cp := *def
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.workflows[def.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) GetWorkflowByName(_ context.Context, name string) (*WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workflows {
		if strings.EqualFold(w.Name, name) {
			cp := *w
			return &cp, nil
		}
	}
	return nil, storeNotFound("workflow", name)
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, def *WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.workflows[def.ID]
	if !ok {
		return storeNotFound("workflow", def.ID)
	}
	for id, w := range s.workflows {
		if id != def.ID && strings.EqualFold(w.Name, def.Name) {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow name %q already in use", def.Name)
		}
	}
	cp := *def
	cp.Version = cur.Version + 1
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.workflows[def.ID] = &cp
	return nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var defs []*WorkflowRecord
	for _, w := range s.workflows {
		if filter.Enabled != nil && w.Enabled != *filter.Enabled {
			continue
		}
		cp := *w
		defs = append(defs, &cp)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return paginate(defs, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(s.workflows, id)
	return nil
}

// --- Executions ---

func (s *MemoryStore) CreateExecution(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyExecution(exec)
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.StartedAt
	s.execs[exec.ID] = cp
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	return copyExecution(exec), nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, id string, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[id]
	if !ok {
		return storeNotFound("execution", id)
	}
	applyUpdate(exec, update)
	return nil
}

func applyUpdate(exec *Execution, update ExecutionUpdate) {
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.CurrentNodeID != nil {
		exec.CurrentNodeID = *update.CurrentNodeID
	}
	if update.Context != nil {
		exec.Context = copyBag(update.Context)
	}
	if update.ClearWaiting {
		exec.WaitingUntil = nil
		exec.WaitingFor = ""
	} else {
		if update.WaitingUntil != nil {
			t := *update.WaitingUntil
			exec.WaitingUntil = &t
		}
		if update.WaitingFor != nil {
			exec.WaitingFor = *update.WaitingFor
		}
	}
	if update.ErrorMessage != nil {
		exec.ErrorMessage = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		exec.CompletedAt = &t
	}
	exec.UpdatedAt = time.Now().UTC()
}

func (s *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var execs []*Execution
	for _, e := range s.execs {
		if filter.WorkflowID != "" && e.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.DocumentID != "" && e.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		execs = append(execs, copyExecution(e))
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.After(execs[j].StartedAt) })
	return paginate(execs, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) ClaimResume(_ context.Context, id string, inject map[string]any) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimLocked(id, inject)
}

func (s *MemoryStore) claimLocked(id string, inject map[string]any) (*Execution, error) {
	exec, ok := s.execs[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	if exec.Status != schema.ExecutionStatusWaiting {
		return nil, schema.NewErrorf(schema.ErrCodeNotWaiting, "execution %s is %s, not waiting", id, exec.Status)
	}
	if exec.Context == nil {
		exec.Context = make(map[string]any)
	}
	for k, v := range inject {
		exec.Context[k] = v
	}
	exec.Status = schema.ExecutionStatusRunning
	exec.WaitingUntil = nil
	exec.WaitingFor = ""
	exec.UpdatedAt = time.Now().UTC()
	return copyExecution(exec), nil
}

func (s *MemoryStore) ListExpiredWaiting(_ context.Context, now time.Time) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var execs []*Execution
	for _, e := range s.execs {
		if e.Status == schema.ExecutionStatusWaiting && e.WaitingUntil != nil && e.WaitingUntil.Before(now) {
			execs = append(execs, copyExecution(e))
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].WaitingUntil.Before(*execs[j].WaitingUntil) })
	return execs, nil
}

// --- Approval tokens ---

func (s *MemoryStore) CreateToken(_ context.Context, token *ApprovalToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.tokens[token.Token] = &cp
	return nil
}

func (s *MemoryStore) GetTokenByValue(_ context.Context, value string) (*ApprovalToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeInvalidToken, "unknown approval token")
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) OpenTokenForNode(_ context.Context, executionID, nodeID string) (*ApprovalToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *ApprovalToken
	for _, t := range s.tokens {
		if t.ExecutionID != executionID || t.NodeID != nodeID || t.Responded() {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, storeNotFound("approval_token", executionID+"/"+nodeID)
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ConsumeToken(_ context.Context, value, decision, comment string, now time.Time) (*ApprovalToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[value]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeInvalidToken, "unknown approval token")
	}
	if t.Responded() {
		return nil, schema.NewErrorf(schema.ErrCodeAlreadyProcessed, "token already resolved as %q", t.ResponseAction).
			WithDetails(map[string]any{"decision": t.ResponseAction, "responded_at": t.RespondedAt})
	}
	if t.Expired(now) {
		return nil, schema.NewErrorf(schema.ErrCodeExpired, "token expired at %s", t.ExpiresAt.Format(time.RFC3339))
	}

	inject := map[string]any{
		schema.BagKeyDecision:       decision,
		schema.BagKeyDecisionNodeID: t.NodeID,
	}
	if comment != "" {
		inject[schema.BagKeyDecisionComment] = comment
	}
	if _, err := s.claimLocked(t.ExecutionID, inject); err != nil {
		if schema.CodeOf(err) == schema.ErrCodeNotWaiting {
			return nil, schema.NewError(schema.ErrCodeAlreadyProcessed, "execution already resumed")
		}
		return nil, err
	}

	t.ResponseAction = decision
	t.ResponseComment = comment
	respondedAt := now
	t.RespondedAt = &respondedAt

	s.nextID++
	s.decisions = append(s.decisions, &DecisionRecord{
		ID:          s.nextID,
		ExecutionID: t.ExecutionID,
		NodeID:      t.NodeID,
		TokenID:     t.ID,
		Decision:    decision,
		Comment:     comment,
		DecidedAt:   now,
	})

	cp := *t
	return &cp, nil
}

// --- Decision history ---

func (s *MemoryStore) AppendDecision(_ context.Context, rec *DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	cp := *rec
	s.decisions = append(s.decisions, &cp)
	return nil
}

func (s *MemoryStore) ListDecisions(_ context.Context, executionID string) ([]*DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*DecisionRecord
	for _, d := range s.decisions {
		if d.ExecutionID == executionID {
			cp := *d
			recs = append(recs, &cp)
		}
	}
	return recs, nil
}

// --- Event log ---

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var seq int64
	for _, e := range s.events {
		if e.ExecutionID == event.ExecutionID && e.Sequence > seq {
			seq = e.Sequence
		}
	}
	event.Sequence = seq + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.nextID++
	event.ID = s.nextID
	cp := *event
	cp.Payload = copyBag(event.Payload)
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, executionID string, since int64) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*Event
	for _, e := range s.events {
		if e.ExecutionID == executionID && e.Sequence > since {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, nil
}

func (s *MemoryStore) GetEventsByType(_ context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*Event
	for _, e := range s.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if filter.ExecutionID != "" && e.ExecutionID != filter.ExecutionID {
			continue
		}
		if filter.NodeID != "" && e.NodeID != filter.NodeID {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		cp := *e
		events = append(events, &cp)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

// --- Helpers ---

func copyExecution(exec *Execution) *Execution {
	cp := *exec
	cp.Context = copyBag(exec.Context)
	if exec.WaitingUntil != nil {
		t := *exec.WaitingUntil
		cp.WaitingUntil = &t
	}
	if exec.CompletedAt != nil {
		t := *exec.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copyBag(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
