package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// handleEvent delivers a lifecycle event and reports the started executions.
func (s *Server) handleEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventName, err := req.RequireString("event_name")
	if err != nil {
		return mcp.NewToolResultError("event_name is required"), nil
	}
	event := mcp.ParseStringMap(req, "event", nil)

	var doc *schema.Document
	if raw := mcp.ParseStringMap(req, "document", nil); raw != nil {
		buf, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
		}
		doc = &schema.Document{}
		if err := json.Unmarshal(buf, doc); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
		}
	}

	started, runErr := s.engine.OnEvent(ctx, eventName, doc, event)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event delivery failed: %v", runErr)), nil
	}

	ids := make([]string, 0, len(started))
	for _, exec := range started {
		ids = append(ids, exec.ID)
	}
	return marshalResult(map[string]any{"started": len(ids), "executions": ids})
}

// handleRun starts a workflow at its manual entry point.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	documentID := req.GetString("document_id", "")
	params := mcp.ParseStringMap(req, "params", nil)

	exec, runErr := s.engine.StartManual(ctx, workflowID, documentID, params)
	if runErr != nil && exec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", runErr)), nil
	}
	return marshalResult(exec)
}

// handleResolve consumes an approval token with a decision.
func (s *Server) handleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError("token is required"), nil
	}
	decision, err := req.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError("decision is required"), nil
	}
	comment := req.GetString("comment", "")

	exec, resolveErr := s.approval.Resolve(ctx, token, decision, comment)
	if resolveErr != nil && exec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", resolveErr)), nil
	}
	return marshalResult(exec)
}

// handleQuery lists workflows, executions, events or decisions.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", map[string]any{})

	switch resource {
	case "workflows":
		wfFilter := store.WorkflowFilter{
			Limit:  filterInt(filter, "limit", 100),
			Offset: filterInt(filter, "offset", 0),
		}
		if v, ok := filter["enabled"].(bool); ok {
			wfFilter.Enabled = &v
		}
		workflows, listErr := s.store.ListWorkflows(ctx, wfFilter)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"workflows": workflows})

	case "executions":
		execFilter := store.ExecutionFilter{
			WorkflowID: filterString(filter, "workflow_id"),
			DocumentID: filterString(filter, "document_id"),
			Limit:      filterInt(filter, "limit", 100),
			Offset:     filterInt(filter, "offset", 0),
		}
		if v := filterString(filter, "status"); v != "" {
			status := schema.ExecutionStatus(v)
			execFilter.Status = &status
		}
		execs, listErr := s.store.ListExecutions(ctx, execFilter)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"executions": execs})

	case "events":
		executionID := filterString(filter, "execution_id")
		if executionID == "" {
			return mcp.NewToolResultError("filter.execution_id is required for events"), nil
		}
		events, listErr := s.store.GetEvents(ctx, executionID, int64(filterInt(filter, "since", 0)))
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"events": events})

	case "decisions":
		executionID := filterString(filter, "execution_id")
		if executionID == "" {
			return mcp.NewToolResultError("filter.execution_id is required for decisions"), nil
		}
		decisions, listErr := s.store.ListDecisions(ctx, executionID)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"decisions": decisions})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource %q", resource)), nil
	}
}

func filterString(filter map[string]any, key string) string {
	v, _ := filter[key].(string)
	return v
}

func filterInt(filter map[string]any, key string, def int) int {
	switch v := filter[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
