// Package mcp exposes wayfind sessions as MCP tools so agent hosts can
// drive guide sessions over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/internal/engine"
	"github.com/rendis/wayfind/pkg/schema"
)

// SessionEngine is the engine surface the MCP tools depend on.
type SessionEngine interface {
	Start(ctx context.Context, userID, request string) (*engine.Result, error)
	Resume(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error)
	Status(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error)
	Events(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error)
}

// WayfindServerDeps holds the dependencies for creating a WayfindServer.
type WayfindServerDeps struct {
	Engine SessionEngine
	Logger *slog.Logger
}

// WayfindServer wraps an MCP server with wayfind-specific tool handlers.
type WayfindServer struct {
	engine    SessionEngine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewWayfindServer creates a new WayfindServer with all 4 tools registered.
func NewWayfindServer(deps WayfindServerDeps) *WayfindServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &WayfindServer{
		engine: deps.Engine,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"wayfind",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Wayfind builds step-by-step AI tool guides from a user request. Use wayfind.start to open a session; when it suspends with a proposed plan, use wayfind.resume with approve, modify, or cancel. wayfind.status and wayfind.events inspect a session."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *WayfindServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *WayfindServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *WayfindServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: eventsTool(), Handler: s.handleEvents},
	}
}

// --- Tool definitions ---

func startTool() mcp.Tool {
	return mcp.NewTool("wayfind.start",
		mcp.WithDescription("Start a guide session from a natural-language request. Complex requests suspend with a proposed plan that must be approved via wayfind.resume"),
		mcp.WithString("request", mcp.Required(), mcp.Description("What the user wants to accomplish")),
		mcp.WithString("user_id", mcp.Description("Stable user identifier; enables profile personalization")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("wayfind.resume",
		mcp.WithDescription("Answer a suspended session's approval prompt"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the suspended session")),
		mcp.WithString("decision", mcp.Required(),
			mcp.Enum("approve", "modify", "cancel"),
			mcp.Description("Approve the plan, request changes, or cancel the session"),
		),
		mcp.WithString("feedback", mcp.Description("Requested changes (required when decision is modify)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("wayfind.status",
		mcp.WithDescription("Get the current node, status, and plan of a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to query")),
	)
}

func eventsTool() mcp.Tool {
	return mcp.NewTool("wayfind.events",
		mcp.WithDescription("Read a session's audit event log"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to query")),
		mcp.WithString("since", mcp.Description("Return only events after this sequence number")),
	)
}
