package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/pkg/schema"
)

// handleEvent ingests one document lifecycle event and fans it out over the
// enabled workflows. The response lists the executions it started.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventName string           `json:"event_name"`
		Document  *schema.Document `json:"document,omitempty"`
		Event     map[string]any   `json:"event,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.EventName == "" {
		writeBadRequest(w, "event_name is required")
		return
	}

	if body.Document != nil && s.deps.Documents != nil {
		s.deps.Documents.Put(body.Document)
	}

	started, err := s.deps.Engine.OnEvent(r.Context(), body.EventName, body.Document, body.Event)
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]string, 0, len(started))
	for _, exec := range started {
		ids = append(ids, exec.ID)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"started":    len(ids),
		"executions": ids,
	})
}

// --- Workflow definitions ---

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkflowFilter{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}

	workflows, err := s.deps.Store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var def schema.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	now := time.Now().UTC()
	def.ID = uuid.NewString()
	def.Version = 1
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := s.deps.Validator.ValidateDefinition(&def); err != nil {
		writeError(w, err)
		return
	}

	rec := &store.WorkflowRecord{WorkflowDefinition: def}
	if err := s.deps.Store.CreateWorkflow(r.Context(), rec); err != nil {
		s.writeNameConflict(w, r, err, def.Name)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var def schema.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	def.ID = id
	def.Version = existing.Version + 1
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now().UTC()

	if err := s.deps.Validator.ValidateDefinition(&def); err != nil {
		writeError(w, err)
		return
	}

	rec := &store.WorkflowRecord{WorkflowDefinition: def}
	if err := s.deps.Store.UpdateWorkflow(r.Context(), rec); err != nil {
		s.writeNameConflict(w, r, err, def.Name)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentID string         `json:"document_id,omitempty"`
		Params     map[string]any `json:"params,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}

	exec, err := s.deps.Engine.StartManual(r.Context(), r.PathValue("id"), body.DocumentID, body.Params)
	if err != nil {
		if exec != nil {
			// The execution started and then failed; surface both.
			writeJSON(w, http.StatusOK, exec)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

// writeNameConflict turns a CONFLICT on the unique workflow name into a 409
// carrying a free suggested name.
func (s *Server) writeNameConflict(w http.ResponseWriter, r *http.Request, err error, name string) {
	if schema.CodeOf(err) != schema.ErrCodeConflict {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]any{
		"error":          fmt.Sprintf("workflow name %q already in use", name),
		"code":           schema.ErrCodeConflict,
		"suggested_name": s.suggestName(r, name),
	})
}

// suggestName probes "name (2)", "name (3)", ... until a free one is found.
func (s *Server) suggestName(r *http.Request, name string) string {
	for i := 2; i < 100; i++ {
		candidate := fmt.Sprintf("%s (%d)", name, i)
		if _, err := s.deps.Store.GetWorkflowByName(r.Context(), candidate); schema.CodeOf(err) == schema.ErrCodeNotFound {
			return candidate
		}
	}
	return fmt.Sprintf("%s (%s)", name, uuid.NewString()[:8])
}

// --- Executions ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := store.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		DocumentID: r.URL.Query().Get("document_id"),
		Limit:      queryInt(r, "limit", 100),
		Offset:     queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := schema.ExecutionStatus(v)
		filter.Status = &status
	}

	execs, err := s.deps.Store.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Store.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Store.GetEvents(r.Context(), r.PathValue("id"), int64(queryInt(r, "since", 0)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleExecutionDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := s.deps.Store.ListDecisions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "cancelled via API"
	}

	exec, err := s.deps.Engine.Cancel(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// --- Designer support ---

func (s *Server) handleNodeKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"kinds": s.deps.Registry.Schemas()})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	advanced, err := s.deps.Engine.SweepExpired(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": advanced})
}
