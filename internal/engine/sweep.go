package engine

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/internal/logging"
	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// SweepExpired advances every waiting execution whose deadline has elapsed
// at now. Timer waits follow their default connection. Approval waits follow
// the timeout connection when the graph wires one, otherwise the execution
// fails with EXPIRED. Returns the number of executions advanced.
//
// The sweep is idempotent: each expired execution is claimed with the same
// conditional update resumption uses, so racing a concurrent token
// resolution (or a second sweep) is harmless.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := e.store.ListExpiredWaiting(ctx, now)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, exec := range expired {
		if err := e.sweepOne(ctx, exec, now); err != nil {
			if schema.CodeOf(err) == schema.ErrCodeNotWaiting {
				// Resolved between listing and claiming.
				continue
			}
			e.logger.ErrorContext(ctx, "sweep execution",
				"execution_id", exec.ID, "error", err)
			continue
		}
		advanced++
	}
	return advanced, nil
}

func (e *Engine) sweepOne(ctx context.Context, exec *store.Execution, now time.Time) error {
	ctx = logging.WithExecutionID(ctx, exec.ID)

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return err
	}
	graph, err := CompileGraph(&wf.WorkflowDefinition, e.registry)
	if err != nil {
		return err
	}

	nodeID := exec.CurrentNodeID
	isApproval := exec.WaitingFor == schema.WaitForApproval

	if isApproval && !graph.HasRoute(nodeID, schema.OutputTimeout) {
		// No timeout path wired; the gate cannot be passed anymore.
		claimed, err := e.store.ClaimResume(ctx, exec.ID, nil)
		if err != nil {
			return err
		}
		e.appendEvent(ctx, claimed.ID, nodeID, schema.EventExecutionExpired, map[string]any{
			"waiting_for": exec.WaitingFor,
		})
		failed, err := e.fail(ctx, claimed, schema.NewErrorf(schema.ErrCodeExpired,
			"approval window elapsed with no timeout path").WithNode(nodeID))
		if failed == nil {
			return err
		}
		return nil
	}

	claimed, err := e.store.ClaimResume(ctx, exec.ID, map[string]any{
		schema.BagKeyDecision:       schema.DecisionTimeout,
		schema.BagKeyDecisionNodeID: nodeID,
	})
	if err != nil {
		return err
	}

	e.appendEvent(ctx, claimed.ID, nodeID, schema.EventExecutionExpired, map[string]any{
		"waiting_for": exec.WaitingFor,
	})
	if isApproval {
		if err := e.store.AppendDecision(ctx, &store.DecisionRecord{
			ExecutionID: claimed.ID,
			NodeID:      nodeID,
			Decision:    schema.DecisionTimeout,
			DecidedAt:   now.UTC(),
		}); err != nil {
			e.logger.WarnContext(ctx, "record timeout decision", "error", err)
		}
	}

	e.logger.InfoContext(ctx, "expired wait advanced",
		"node_id", nodeID, "waiting_for", exec.WaitingFor)

	var doc *schema.Document
	if claimed.DocumentID != "" {
		doc, err = e.directory.Get(ctx, claimed.DocumentID)
		if err != nil {
			failed, failErr := e.fail(ctx, claimed, schema.NewErrorf(schema.ErrCodeNodeFailed,
				"load document: %s", err.Error()).WithCause(err))
			if failed == nil {
				return failErr
			}
			return nil
		}
	}

	if _, err := e.run(ctx, graph, claimed, doc); err != nil {
		// run already persisted the failure; the sweep still advanced
		// this execution.
		e.logger.WarnContext(ctx, "expired execution failed while advancing", "error", err)
	}
	return nil
}
