package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/docs"
	"github.com/docuflow/docuflow/internal/logging"
	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/internal/trigger"
	"github.com/docuflow/docuflow/pkg/schema"
)

// DefaultMaxSteps bounds a single traversal. Definitions can contain cycles
// through condition nodes; the bound turns a runaway loop into a failed
// execution instead of a wedged goroutine.
const DefaultMaxSteps = 1000

// Config holds engine tuning knobs.
type Config struct {
	MaxSteps int
}

// Engine drives workflow executions: it starts them from lifecycle events,
// steps them node by node, suspends on human gates and timers, and resumes
// them when a decision or deadline arrives.
type Engine struct {
	store     store.Store
	registry  *nodes.Registry
	directory docs.Directory
	fsm       *ExecutionFSM
	logger    *slog.Logger
	maxSteps  int
	now       func() time.Time
}

// New creates an Engine on top of the given store, executor registry and
// document directory.
func New(st store.Store, reg *nodes.Registry, dir docs.Directory, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Engine{
		store:     st,
		registry:  reg,
		directory: dir,
		fsm:       NewExecutionFSM(st),
		logger:    logger,
		maxSteps:  maxSteps,
		now:       time.Now,
	}
}

// OnEvent fans a document lifecycle event out over every enabled workflow.
// Each entry node whose trigger matches starts an independent execution.
// A failing execution does not stop the fan-out.
func (e *Engine) OnEvent(ctx context.Context, eventName string, doc *schema.Document, event map[string]any) ([]*store.Execution, error) {
	enabled := true
	workflows, err := e.store.ListWorkflows(ctx, store.WorkflowFilter{Enabled: &enabled})
	if err != nil {
		return nil, err
	}

	var started []*store.Execution
	for _, wf := range workflows {
		graph, err := CompileGraph(&wf.WorkflowDefinition, e.registry)
		if err != nil {
			e.logger.ErrorContext(ctx, "skipping workflow with invalid definition",
				"workflow_id", wf.ID, "error", err)
			continue
		}
		for _, entry := range graph.Entries {
			if !trigger.ShouldTrigger(entry.Kind, entry.Config, eventName, doc, event) {
				continue
			}
			exec, err := e.start(ctx, graph, entry.ID, eventName, doc, event)
			if err != nil {
				e.logger.ErrorContext(ctx, "start execution",
					"workflow_id", wf.ID, "entry_node", entry.ID, "error", err)
				continue
			}
			started = append(started, exec)
		}
	}
	return started, nil
}

// StartManual starts one execution of a specific workflow at its first
// manual entry node, regardless of filters.
func (e *Engine) StartManual(ctx context.Context, workflowID, documentID string, params map[string]any) (*store.Execution, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	graph, err := CompileGraph(&wf.WorkflowDefinition, e.registry)
	if err != nil {
		return nil, err
	}

	var entry *schema.WorkflowNode
	for i := range graph.Entries {
		if graph.Entries[i].Kind == schema.NodeKindManual {
			entry = &graph.Entries[i]
			break
		}
	}
	if entry == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"workflow %s has no manual entry point", workflowID)
	}

	var doc *schema.Document
	if documentID != "" {
		doc, err = e.directory.Get(ctx, documentID)
		if err != nil {
			return nil, err
		}
	}
	event := make(map[string]any, len(params))
	for k, v := range params {
		event[k] = v
	}
	return e.start(ctx, graph, entry.ID, schema.EventManual, doc, event)
}

// start creates, persists and drives a fresh execution from an entry node.
func (e *Engine) start(ctx context.Context, g *Graph, entryNodeID, eventName string, doc *schema.Document, event map[string]any) (*store.Execution, error) {
	bag := make(map[string]any, len(event)+1)
	for k, v := range event {
		bag[k] = v
	}
	bag[schema.BagKeyEventName] = eventName

	exec := &store.Execution{
		ID:            uuid.NewString(),
		WorkflowID:    g.Definition.ID,
		Status:        schema.ExecutionStatusPending,
		CurrentNodeID: entryNodeID,
		Context:       bag,
		StartedAt:     e.now().UTC(),
	}
	if doc != nil {
		exec.DocumentID = doc.ID
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	e.appendEvent(ctx, exec.ID, "", schema.EventExecutionCreated, map[string]any{
		"workflow_id": exec.WorkflowID,
		"document_id": exec.DocumentID,
		"entry_node":  entryNodeID,
		"event_name":  eventName,
	})

	if err := e.transition(ctx, exec, schema.ExecutionStatusRunning, nil); err != nil {
		return nil, err
	}

	ctx = logging.WithExecutionID(ctx, exec.ID)
	e.logger.InfoContext(ctx, "execution started",
		"workflow_id", exec.WorkflowID, "entry_node", entryNodeID, "event", eventName)

	return e.run(ctx, g, exec, doc)
}

// Resume claims a waiting execution, merges inject into its context bag and
// continues the traversal. The second of two concurrent resumers receives a
// NOT_WAITING error.
func (e *Engine) Resume(ctx context.Context, executionID string, inject map[string]any) (*store.Execution, error) {
	exec, err := e.store.ClaimResume(ctx, executionID, inject)
	if err != nil {
		return nil, err
	}
	return e.Continue(ctx, exec)
}

// Continue drives an execution that has already been claimed back to
// running, such as by ClaimResume or ConsumeToken.
func (e *Engine) Continue(ctx context.Context, exec *store.Execution) (*store.Execution, error) {
	ctx = logging.WithExecutionID(ctx, exec.ID)

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return nil, err
	}
	graph, err := CompileGraph(&wf.WorkflowDefinition, e.registry)
	if err != nil {
		return e.fail(ctx, exec, asFlowError(err, schema.ErrCodeValidation))
	}

	e.appendEvent(ctx, exec.ID, exec.CurrentNodeID, schema.EventExecutionResumed, nil)
	e.logger.InfoContext(ctx, "execution resumed", "node_id", exec.CurrentNodeID)

	var doc *schema.Document
	if exec.DocumentID != "" {
		doc, err = e.directory.Get(ctx, exec.DocumentID)
		if err != nil {
			return e.fail(ctx, exec, asFlowError(err, schema.ErrCodeStore))
		}
	}
	return e.run(ctx, graph, exec, doc)
}

// Cancel terminates a pending, running or waiting execution.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string) (*store.Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"execution %s is already %s", executionID, exec.Status)
	}
	if err := e.transition(ctx, exec, schema.ExecutionStatusCancelled, map[string]any{"reason": reason}); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "execution cancelled", "execution_id", executionID, "reason", reason)
	return exec, nil
}

// run steps the execution from its current node until it completes, fails or
// suspends. The execution must already be in running status.
func (e *Engine) run(ctx context.Context, g *Graph, exec *store.Execution, doc *schema.Document) (*store.Execution, error) {
	for steps := 0; ; steps++ {
		if steps >= e.maxSteps {
			return e.fail(ctx, exec, schema.NewErrorf(schema.ErrCodeNodeFailed,
				"execution exceeded %d steps, aborting probable cycle", e.maxSteps))
		}

		node, ok := g.Nodes[exec.CurrentNodeID]
		if !ok {
			return e.fail(ctx, exec, schema.NewErrorf(schema.ErrCodeValidation,
				"current node %s not in workflow definition", exec.CurrentNodeID))
		}
		nodeCtx := logging.WithNodeID(ctx, node.ID)
		e.appendEvent(nodeCtx, exec.ID, node.ID, schema.EventNodeEntered, map[string]any{
			"kind": string(node.Kind),
		})

		result, err := g.Executors[node.ID].Execute(nodeCtx, nodes.ExecContext{
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			DocumentID:  exec.DocumentID,
			Node:        node,
			Document:    doc,
			Bag:         exec.Context,
		})
		if err != nil {
			return e.fail(nodeCtx, exec, asFlowError(err, schema.ErrCodeNodeFailed).WithNode(node.ID))
		}

		if len(result.Data) > 0 {
			if exec.Context == nil {
				exec.Context = make(map[string]any, len(result.Data))
			}
			for k, v := range result.Data {
				exec.Context[k] = v
			}
		}

		if result.Suspend != nil {
			return e.suspend(nodeCtx, exec, result.Suspend)
		}

		// An injected decision is addressed to one node and spent the moment
		// that node routes on it. Clearing it here lets a loop back to the
		// same gate suspend fresh instead of replaying the old answer.
		if exec.Context[schema.BagKeyDecisionNodeID] == node.ID {
			delete(exec.Context, schema.BagKeyDecision)
			delete(exec.Context, schema.BagKeyDecisionComment)
			delete(exec.Context, schema.BagKeyDecisionNodeID)
		}

		next, ok := g.Next(node.ID, result.Output())
		if !ok {
			return e.complete(nodeCtx, exec)
		}

		exec.CurrentNodeID = next.ID
		if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
			CurrentNodeID: &next.ID,
			Context:       exec.Context,
		}); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) suspend(ctx context.Context, exec *store.Execution, s *nodes.Suspension) (*store.Execution, error) {
	payload := map[string]any{"node_id": exec.CurrentNodeID, "waiting_for": s.WaitFor}
	if s.WaitUntil != nil {
		payload["waiting_until"] = s.WaitUntil.UTC().Format(time.RFC3339)
	}
	if err := e.transitionWith(ctx, exec, schema.ExecutionStatusWaiting, payload, store.ExecutionUpdate{
		Context:      exec.Context,
		WaitingUntil: s.WaitUntil,
		WaitingFor:   &s.WaitFor,
	}); err != nil {
		return nil, err
	}
	exec.WaitingUntil = s.WaitUntil
	exec.WaitingFor = s.WaitFor
	e.logger.InfoContext(ctx, "execution suspended", "waiting_for", s.WaitFor)
	return exec, nil
}

func (e *Engine) complete(ctx context.Context, exec *store.Execution) (*store.Execution, error) {
	completedAt := e.now().UTC()
	if err := e.transitionWith(ctx, exec, schema.ExecutionStatusCompleted, nil, store.ExecutionUpdate{
		Context:      exec.Context,
		ClearWaiting: true,
		CompletedAt:  &completedAt,
	}); err != nil {
		return nil, err
	}
	exec.CompletedAt = &completedAt
	e.logger.InfoContext(ctx, "execution completed", "node_id", exec.CurrentNodeID)
	return exec, nil
}

// asFlowError coerces an error into the structured form, keeping an existing
// FlowError intact and wrapping anything else under the given code.
func asFlowError(err error, code string) *schema.FlowError {
	if fe, ok := err.(*schema.FlowError); ok {
		return fe
	}
	return schema.NewError(code, err.Error()).WithCause(err)
}

// fail marks the execution failed and returns it alongside the causing
// error so callers can surface both.
func (e *Engine) fail(ctx context.Context, exec *store.Execution, cause *schema.FlowError) (*store.Execution, error) {
	completedAt := e.now().UTC()
	msg := cause.Error()
	if err := e.transitionWith(ctx, exec, schema.ExecutionStatusFailed,
		map[string]any{"error": msg, "code": cause.Code}, store.ExecutionUpdate{
			Context:      exec.Context,
			ClearWaiting: true,
			ErrorMessage: &msg,
			CompletedAt:  &completedAt,
		}); err != nil {
		return nil, err
	}
	exec.ErrorMessage = msg
	exec.CompletedAt = &completedAt
	e.logger.ErrorContext(ctx, "execution failed", "error", cause)
	return exec, cause
}

// transition runs the FSM transition and persists the status change.
func (e *Engine) transition(ctx context.Context, exec *store.Execution, to schema.ExecutionStatus, payload map[string]any) error {
	return e.transitionWith(ctx, exec, to, payload, store.ExecutionUpdate{})
}

func (e *Engine) transitionWith(ctx context.Context, exec *store.Execution, to schema.ExecutionStatus, payload map[string]any, update store.ExecutionUpdate) error {
	if err := e.fsm.Transition(ctx, exec.ID, exec.Status, to, payload); err != nil {
		return err
	}
	update.Status = &to
	if err := e.store.UpdateExecution(ctx, exec.ID, update); err != nil {
		return err
	}
	exec.Status = to
	return nil
}

func (e *Engine) appendEvent(ctx context.Context, executionID, nodeID, eventType string, payload map[string]any) {
	err := e.store.AppendEvent(ctx, &store.Event{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Type:        eventType,
		Payload:     payload,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "append event", "event_type", eventType, "error", err)
	}
}
