// Package web serves the public approval pages and the JSON API the
// designer and document collaborators talk to.
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"os"

	"github.com/docuflow/docuflow/internal/approval"
	"github.com/docuflow/docuflow/internal/engine"
	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/internal/validation"
	"github.com/docuflow/docuflow/pkg/schema"
)

//go:embed templates
var content embed.FS

// Deps holds the dependencies for the web server.
type Deps struct {
	Store     store.Store
	Engine    *engine.Engine
	Approval  *approval.Service
	Validator *validation.Validator
	Registry  *nodes.Registry
	Documents DocumentSink
	Logger    *slog.Logger
}

// DocumentSink receives the document projections delivered alongside events
// so later resumes can re-read them. Satisfied by docs.MemoryDirectory; a
// deployment backed by the real document system leaves it nil.
type DocumentSink interface {
	Put(doc *schema.Document)
}

// Server serves the approval pages and the JSON API.
type Server struct {
	deps  Deps
	pages map[string]*template.Template
}

// NewServer creates a Server with parsed templates.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	base := template.Must(template.New("").ParseFS(content, "templates/base.html"))

	pageFiles := []string{
		"approve.html",
		"result.html",
	}
	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &Server{deps: deps, pages: pages}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public approval pages; the token in the path is the only credential.
	mux.HandleFunc("GET /approve/{token}", s.handleApprovalPage)
	mux.HandleFunc("POST /approve/{token}", s.handleApprovalSubmit)

	// Event intake from document collaborators.
	mux.HandleFunc("POST /api/events", s.handleEvent)

	// Workflow definitions.
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("POST /api/workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /api/workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/run", s.handleRunWorkflow)

	// Executions.
	mux.HandleFunc("GET /api/executions", s.handleListExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.handleGetExecution)
	mux.HandleFunc("GET /api/executions/{id}/events", s.handleExecutionEvents)
	mux.HandleFunc("GET /api/executions/{id}/decisions", s.handleExecutionDecisions)
	mux.HandleFunc("POST /api/executions/{id}/cancel", s.handleCancelExecution)

	// Node kind catalog for the designer.
	mux.HandleFunc("GET /api/node-kinds", s.handleNodeKinds)

	// Manual sweep trigger, for operators and tests.
	mux.HandleFunc("POST /api/sweep", s.handleSweep)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// renderPage executes a page template by name.
func (s *Server) renderPage(w http.ResponseWriter, status int, page string, data any) {
	tpl, ok := s.pages[page]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("render page", slog.String("page", page), slog.String("error", err.Error()))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
