// Package mcp is the goal service boundary: an MCP server over stdio that
// exposes goal execution, plan inspection, direct simulation, and schedule
// management as tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/internal/service"
	"github.com/fabriqa/takt/internal/store"
	"github.com/fabriqa/takt/internal/streaming"
	"github.com/fabriqa/takt/pkg/schema"
)

// GoalService is the slice of the goal service the MCP boundary needs.
// Satisfied by *service.Service.
type GoalService interface {
	Execute(ctx context.Context, req *schema.GoalRequest) (*schema.GoalResult, error)
	Plan(ctx context.Context, goal string) (*schema.ActionPlan, error)
	Goals(ctx context.Context) ([]ontology.GoalEntry, error)
	Simulate(ctx context.Context, req service.SimulateRequest) (*service.SimulateResult, error)
}

// TaktServerDeps holds the dependencies for creating a TaktServer.
type TaktServerDeps struct {
	Service  GoalService
	Store    store.Store
	Hub      streaming.EventHub
	Logger   *slog.Logger
	Sessions *SessionRegistry
}

// TaktServer wraps an MCP server with takt-specific tool handlers.
type TaktServer struct {
	service   GoalService
	store     store.Store
	hub       streaming.EventHub
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewTaktServer creates a new TaktServer with all 5 tools registered.
func NewTaktServer(deps TaktServerDeps) *TaktServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry()
	}

	s := &TaktServer{
		service:  deps.Service,
		store:    deps.Store,
		hub:      deps.Hub,
		sessions: sessions,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"takt",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Takt resolves declarative factory goals into action plans and executes them. Use takt.goals to discover goals, takt.plan to inspect a goal's action list, takt.run to execute a goal, takt.simulate to run the production simulator directly, and takt.schedule to manage recurring goal runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *TaktServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *TaktServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *TaktServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: planTool(), Handler: s.handlePlan},
		{Tool: goalsTool(), Handler: s.handleGoals},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("takt.run",
		mcp.WithDescription("Resolve a goal into an action plan and execute it"),
		mcp.WithString("goal", mcp.Required(), mcp.Description("Name of the goal to execute")),
		mcp.WithString("date", mcp.Description("Snapshot date (YYYY-MM-DD) for query goals")),
		mcp.WithString("product_id", mcp.Description("Product the goal operates on")),
		mcp.WithString("target_machine", mcp.Description("Force all routing steps onto this machine")),
		mcp.WithNumber("quantity", mcp.Description("Batch size for prediction goals")),
		mcp.WithObject("date_range", mcp.Description("Date range {start, end} for range queries")),
	)
}

func planTool() mcp.Tool {
	return mcp.NewTool("takt.plan",
		mcp.WithDescription("Resolve a goal into its ordered action list without executing it"),
		mcp.WithString("goal", mcp.Required(), mcp.Description("Name of the goal to resolve")),
	)
}

func goalsTool() mcp.Tool {
	return mcp.NewTool("takt.goals",
		mcp.WithDescription("List the goals the knowledge base declares"),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("takt.simulate",
		mcp.WithDescription("Run the embedded production simulator for a product batch"),
		mcp.WithString("product_id", mcp.Required(), mcp.Description("Product to simulate")),
		mcp.WithNumber("quantity", mcp.Description("Batch size (default 1)")),
		mcp.WithString("target_machine", mcp.Description("Force all routing steps onto this machine")),
		mcp.WithString("start", mcp.Description("Simulation start time, RFC 3339 (default now)")),
		mcp.WithNumber("seed", mcp.Description("Random seed for reproducible runs")),
		mcp.WithString("timeline", mcp.Enum("none", "mermaid", "text"),
			mcp.Description("Timeline rendering to include (default none)")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("takt.schedule",
		mcp.WithDescription("Manage recurring goal runs"),
		mcp.WithString("op", mcp.Required(),
			mcp.Enum("create", "list", "delete"),
			mcp.Description("Schedule operation"),
		),
		mcp.WithString("goal", mcp.Description("Goal to run (create) or filter by (list)")),
		mcp.WithString("cron", mcp.Description("5-field cron expression (create)")),
		mcp.WithObject("params", mcp.Description("Goal request params; date may be the sentinel \"today\"")),
		mcp.WithString("id", mcp.Description("Schedule id (delete)")),
	)
}
