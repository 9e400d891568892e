package e2e

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/approval"
	"github.com/docuflow/docuflow/internal/docs"
	"github.com/docuflow/docuflow/internal/engine"
	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/internal/notify"
	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/internal/validation"
	"github.com/docuflow/docuflow/pkg/schema"
)

// --- Test harness ---

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *captureMailer) Send(_ context.Context, _ []string, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *captureMailer) lastBody(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.bodies)
	return m.bodies[len(m.bodies)-1]
}

type harness struct {
	t         *testing.T
	store     *store.LibSQLStore
	directory *docs.MemoryDirectory
	engine    *engine.Engine
	approvals *approval.Service
	validator *validation.Validator
	mailer    *captureMailer
}

const baseURL = "http://localhost:4180"

func newHarness(t *testing.T) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "e2e.db")
	st, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	directory := docs.NewMemoryDirectory()
	mailer := &captureMailer{}
	approvals := approval.NewService(st, mailer, baseURL, nil)

	registry := nodes.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(registry, nodes.Deps{
		Issuer:    approvals,
		Mailer:    mailer,
		NotifyLog: notify.NewEventNotifyLog(st),
		Directory: directory,
	}))

	eng := engine.New(st, registry, directory, nil, engine.Config{})
	approvals.Bind(eng)

	validator, err := validation.New(registry)
	require.NoError(t, err)

	return &harness{
		t:         t,
		store:     st,
		directory: directory,
		engine:    eng,
		approvals: approvals,
		validator: validator,
		mailer:    mailer,
	}
}

func (h *harness) createWorkflow(def schema.WorkflowDefinition) string {
	h.t.Helper()
	def.ID = uuid.NewString()
	def.Version = 1
	def.Enabled = true
	require.NoError(h.t, h.validator.ValidateDefinition(&def))
	require.NoError(h.t, h.store.CreateWorkflow(context.Background(),
		&store.WorkflowRecord{WorkflowDefinition: def}))
	return def.ID
}

// tokenFromMail extracts the approval token out of the delivered link.
func (h *harness) tokenFromMail() string {
	h.t.Helper()
	body := h.mailer.lastBody(h.t)
	marker := baseURL + "/approve/"
	i := strings.Index(body, marker)
	require.GreaterOrEqual(h.t, i, 0, "mail body carries no approval link")
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \r\n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// invoiceReview routes high-value invoices through a human gate and
// auto-approves the rest.
func invoiceReview() schema.WorkflowDefinition {
	return schema.WorkflowDefinition{
		Name:        "invoice review",
		Description: "human gate above 1000, auto approve below",
		Nodes: []schema.WorkflowNode{
			{ID: "intake", Kind: schema.NodeKindDocumentAdded, IsEntryPoint: true,
				Config: map[string]any{"filter_document_type_codes": []any{"invoice"}}},
			{ID: "check", Kind: schema.NodeKindCondition,
				Config: map[string]any{"expression": "document.amount > 1000.0"}},
			{ID: "gate", Kind: schema.NodeKindApproval,
				Config: map[string]any{
					"assigned_user_id": "finance@example.com",
					"message":          "High value invoice needs sign off",
				}},
			{ID: "approve", Kind: schema.NodeKindSetStatus,
				Config: map[string]any{"status": "approved"}},
			{ID: "reject", Kind: schema.NodeKindSetStatus,
				Config: map[string]any{"status": "rejected"}},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "c1", FromNodeID: "intake", ToNodeID: "check", Order: 1},
			{ID: "c2", FromNodeID: "check", ToNodeID: "gate", OutputName: schema.OutputTrue, Order: 1},
			{ID: "c3", FromNodeID: "check", ToNodeID: "approve", OutputName: schema.OutputFalse, Order: 1},
			{ID: "c4", FromNodeID: "gate", ToNodeID: "approve", OutputName: schema.OutputApproved, Order: 1},
			{ID: "c5", FromNodeID: "gate", ToNodeID: "reject", OutputName: schema.OutputRejected, Order: 1},
		},
	}
}

func amount(v float64) *float64 { return &v }

// --- Scenarios ---

func TestHighValueInvoiceApprovalRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createWorkflow(invoiceReview())

	doc := &schema.Document{
		ID:               "doc-hv",
		Title:            "Server hardware",
		DocumentTypeCode: "invoice",
		Amount:           amount(4800),
	}
	h.directory.Put(doc)

	started, err := h.engine.OnEvent(ctx, schema.EventDocumentAdded, doc, nil)
	require.NoError(t, err)
	require.Len(t, started, 1)
	exec := started[0]
	assert.Equal(t, schema.ExecutionStatusWaiting, exec.Status)
	assert.Equal(t, "gate", exec.CurrentNodeID)

	// The emailed link carries a working token.
	token := h.tokenFromMail()
	peeked, err := h.approvals.Peek(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, peeked.ExecutionID)
	assert.Equal(t, "High value invoice needs sign off", peeked.Message)

	resumed, err := h.approvals.Resolve(ctx, token, "approved", "verified against PO")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusCompleted, resumed.Status)

	got, err := h.directory.Get(ctx, "doc-hv")
	require.NoError(t, err)
	assert.Equal(t, schema.ValidationApproved, got.ValidationStatus)

	decisions, err := h.store.ListDecisions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "approved", decisions[0].Decision)
	assert.Equal(t, "verified against PO", decisions[0].Comment)

	// The spent token is recognizable but no longer usable.
	_, err = h.approvals.Peek(ctx, token)
	assert.Equal(t, schema.ErrCodeAlreadyProcessed, schema.CodeOf(err))
	_, err = h.approvals.Resolve(ctx, token, "rejected", "")
	assert.Equal(t, schema.ErrCodeAlreadyProcessed, schema.CodeOf(err))
}

func TestLowValueInvoiceAutoApproves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createWorkflow(invoiceReview())

	doc := &schema.Document{
		ID:               "doc-lv",
		DocumentTypeCode: "invoice",
		Amount:           amount(120),
	}
	h.directory.Put(doc)

	started, err := h.engine.OnEvent(ctx, schema.EventDocumentAdded, doc, nil)
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, schema.ExecutionStatusCompleted, started[0].Status)

	got, err := h.directory.Get(ctx, "doc-lv")
	require.NoError(t, err)
	assert.Equal(t, schema.ValidationApproved, got.ValidationStatus)

	// No human was bothered.
	h.mailer.mu.Lock()
	defer h.mailer.mu.Unlock()
	assert.Empty(t, h.mailer.bodies)
}

func TestNonInvoiceEventStartsNothing(t *testing.T) {
	h := newHarness(t)
	h.createWorkflow(invoiceReview())

	doc := &schema.Document{ID: "doc-rcpt", DocumentTypeCode: "receipt"}
	started, err := h.engine.OnEvent(context.Background(), schema.EventDocumentAdded, doc, nil)
	require.NoError(t, err)
	assert.Empty(t, started)
}

func TestRejectionRoutesToRejectBranch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createWorkflow(invoiceReview())

	doc := &schema.Document{ID: "doc-bad", DocumentTypeCode: "invoice", Amount: amount(9000)}
	h.directory.Put(doc)

	started, err := h.engine.OnEvent(ctx, schema.EventDocumentAdded, doc, nil)
	require.NoError(t, err)
	require.Len(t, started, 1)

	resumed, err := h.approvals.Resolve(ctx, h.tokenFromMail(), "rejected", "duplicate billing")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusCompleted, resumed.Status)

	got, err := h.directory.Get(ctx, "doc-bad")
	require.NoError(t, err)
	assert.Equal(t, schema.ValidationRejected, got.ValidationStatus)
}

func TestExpiredGateTakesTimeoutRoute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := schema.WorkflowDefinition{
		Name: "escalating gate",
		Nodes: []schema.WorkflowNode{
			{ID: "start", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "gate", Kind: schema.NodeKindApproval,
				Config: map[string]any{"assigned_user_id": "ops@example.com", "expires_in_days": 2}},
			{ID: "escalate", Kind: schema.NodeKindSetVariable,
				Config: map[string]any{"name": "escalated", "expression": "true"}},
			{ID: "done", Kind: schema.NodeKindSetStatus,
				Config: map[string]any{"status": "approved"}},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "c1", FromNodeID: "start", ToNodeID: "gate", Order: 1},
			{ID: "c2", FromNodeID: "gate", ToNodeID: "done", OutputName: schema.OutputApproved, Order: 1},
			{ID: "c3", FromNodeID: "gate", ToNodeID: "escalate", OutputName: schema.OutputTimeout, Order: 1},
		},
	}
	id := h.createWorkflow(def)

	doc := &schema.Document{ID: "doc-slow"}
	h.directory.Put(doc)
	exec, err := h.engine.StartManual(ctx, id, "doc-slow", nil)
	require.NoError(t, err)
	require.Equal(t, schema.ExecutionStatusWaiting, exec.Status)

	// Nothing expires inside the window.
	advanced, err := h.engine.SweepExpired(ctx, time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, advanced)

	advanced, err = h.engine.SweepExpired(ctx, time.Now().UTC().Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)

	final, err := h.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, true, final.Context["escalated"])

	decisions, err := h.store.ListDecisions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, schema.DecisionTimeout, decisions[0].Decision)
}

func TestCancelledExecutionIgnoresLateApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createWorkflow(invoiceReview())

	doc := &schema.Document{ID: "doc-cxl", DocumentTypeCode: "invoice", Amount: amount(2000)}
	h.directory.Put(doc)

	started, err := h.engine.OnEvent(ctx, schema.EventDocumentAdded, doc, nil)
	require.NoError(t, err)
	require.Len(t, started, 1)
	token := h.tokenFromMail()

	_, err = h.engine.Cancel(ctx, started[0].ID, "superseded")
	require.NoError(t, err)

	_, err = h.approvals.Resolve(ctx, token, "approved", "")
	assert.Equal(t, schema.ErrCodeAlreadyProcessed, schema.CodeOf(err))

	final, err := h.store.GetExecution(ctx, started[0].ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusCancelled, final.Status)
}
