// Package mcp exposes the engine over the Model Context Protocol so agent
// tooling can start workflows, resolve approvals and inspect executions.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docuflow/docuflow/internal/approval"
	"github.com/docuflow/docuflow/internal/engine"
	"github.com/docuflow/docuflow/internal/store"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Engine   *engine.Engine
	Approval *approval.Service
	Store    store.Store
	Logger   *slog.Logger
}

// Server wraps an MCP server with the docuflow tool handlers.
type Server struct {
	engine    *engine.Engine
	approval  *approval.Service
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		engine:   deps.Engine,
		approval: deps.Approval,
		store:    deps.Store,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"docuflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Docuflow routes documents through workflow graphs with human approval gates. Use docuflow.event to deliver a document lifecycle event, docuflow.run to start a workflow manually, docuflow.resolve to decide a pending approval, and docuflow.query to list workflows, executions, events and decisions."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: eventTool(), Handler: s.handleEvent},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: resolveTool(), Handler: s.handleResolve},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func eventTool() mcp.Tool {
	return mcp.NewTool("docuflow.event",
		mcp.WithDescription("Deliver a document lifecycle event and start matching workflows"),
		mcp.WithString("event_name", mcp.Required(),
			mcp.Enum("document.added", "tag.added", "document.validation_changed", "manual", "upload", "scan"),
			mcp.Description("Lifecycle event name"),
		),
		mcp.WithObject("document", mcp.Description("Subject document projection")),
		mcp.WithObject("event", mcp.Description("Event context, e.g. tag_id, tag_name, status")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("docuflow.run",
		mcp.WithDescription("Start a workflow manually at its manual entry point"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to start")),
		mcp.WithString("document_id", mcp.Description("Subject document ID")),
		mcp.WithObject("params", mcp.Description("Initial context bag entries")),
	)
}

func resolveTool() mcp.Tool {
	return mcp.NewTool("docuflow.resolve",
		mcp.WithDescription("Resolve a pending approval token with a decision"),
		mcp.WithString("token", mcp.Required(), mcp.Description("Approval token value")),
		mcp.WithString("decision", mcp.Required(),
			mcp.Enum("approved", "rejected"),
			mcp.Description("Decision to record"),
		),
		mcp.WithString("comment", mcp.Description("Optional decision comment")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("docuflow.query",
		mcp.WithDescription("Query workflows, executions, events or decisions"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "executions", "events", "decisions"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow_id, document_id, status, execution_id, enabled, limit, offset)")),
	)
}
