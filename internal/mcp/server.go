package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/protolab/crew/internal/pipeline"
	"github.com/protolab/crew/internal/policy"
	"github.com/protolab/crew/internal/scan"
	"github.com/protolab/crew/internal/sessions"
	"github.com/protolab/crew/internal/store"
)

// Runner executes pipelines on behalf of MCP clients.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server wraps the crew data layer and exposes it as MCP tools.
type Server struct {
	store    store.Store
	sessions *sessions.Manager
	policies policy.Table
	runner   Runner
}

// NewServer creates the MCP server wrapper. The runner may be nil when
// no model API key is configured; the pipeline tool then reports that.
func NewServer(s store.Store, policies policy.Table, runner Runner) *Server {
	return &Server{
		store:    s,
		sessions: sessions.NewManager(s),
		policies: policies,
		runner:   runner,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("crew", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.runPipelineTool())
	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionStatusTool())
	srv.AddTool(s.checkPolicyTool())
	srv.AddTool(s.recordApprovalTool())
	srv.AddTool(s.scanTextTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// crew_run_pipeline
func (s *Server) runPipelineTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crew_run_pipeline",
		mcp.WithDescription("Run the idea-to-prototype pipeline. Returns the result as JSON with the session id, the gate the run stopped at, and per-role outputs."),
		mcp.WithString("idea", mcp.Required(), mcp.Description("The product idea to build")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User the run acts as")),
		mcp.WithString("mode", mcp.Description("Pipeline mode: sequential (default) or delegated")),
		mcp.WithString("model", mcp.Description("Model to run the agents on")),
	)
	return tool, s.handleRunPipeline
}

func (s *Server) handleRunPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("pipeline runner not configured (set ANTHROPIC_API_KEY)"), nil
	}

	idea, err := request.RequireString("idea")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: idea"), nil
	}
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	result, err := s.runner.Run(ctx, pipeline.Request{
		Idea:   idea,
		UserID: userID,
		Mode:   pipeline.Mode(request.GetString("mode", string(pipeline.ModeSequential))),
		Model:  request.GetString("model", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pipeline run failed: %v", err)), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crew_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crew_list_sessions",
		mcp.WithDescription("List orchestration sessions. Returns a JSON array of session summaries with phase, status, cost, and artifact counts."),
		mcp.WithString("user_id", mcp.Description("Filter by owning user")),
		mcp.WithString("status", mcp.Description("Filter by status: active, paused, completed, failed")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	status := request.GetString("status", "")

	all, err := s.store.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	out := make([]*sessions.Summary, 0, len(all))
	for _, sess := range all {
		if userID != "" && sess.UserID != userID {
			continue
		}
		if status != "" && string(sess.Status) != status {
			continue
		}
		summary, err := s.sessions.GetSessionSummary(ctx, sess.ID)
		if err != nil {
			continue
		}
		out = append(out, summary)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crew_session_status
func (s *Server) sessionStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crew_session_status",
		mcp.WithDescription("Get one session's summary plus its run records. Returns JSON with the summary and a runs array."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleSessionStatus
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	summary, err := s.sessions.GetSessionSummary(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	runs, err := s.store.ListRuns(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	result := map[string]any{
		"summary": summary,
		"runs":    runs,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// crew_check_policy
func (s *Server) checkPolicyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crew_check_policy",
		mcp.WithDescription("Check whether a role may call a tool without approval. Returns JSON with allowed, the matched action kind if gated, and the role's toolkits."),
		mcp.WithString("role", mcp.Required(), mcp.Description("Role name: orchestrator, researcher, architect, coder, qa, publisher, marketer")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name to check")),
	)
	return tool, s.handleCheckPolicy
}

func (s *Server) handleCheckPolicy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roleName, err := request.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: role"), nil
	}
	toolName, err := request.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tool"), nil
	}

	role := policy.Role(roleName)
	if _, known := s.policies.Roles[role]; !known {
		return mcp.NewToolResultError(fmt.Sprintf("unknown role: %s", roleName)), nil
	}

	var gatedBy policy.Action
	for _, action := range s.policies.Gated(role) {
		if policy.MatchesAction(toolName, action) {
			gatedBy = action
			break
		}
	}

	approved := false
	if gatedBy != "" {
		approved, _ = s.store.IsApproved(ctx, toolName)
	}

	result := map[string]any{
		"role":     roleName,
		"tool":     toolName,
		"allowed":  gatedBy == "" || approved,
		"toolkits": s.policies.Toolkits(role),
	}
	if gatedBy != "" {
		result["gated_by"] = string(gatedBy)
		result["approved"] = approved
	}

	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// crew_record_approval
func (s *Server) recordApprovalTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crew_record_approval",
		mcp.WithDescription("Record a human approval for a gated tool. Later calls to that tool pass the approval gate."),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name to approve")),
	)
	return tool, s.handleRecordApproval
}

func (s *Server) handleRecordApproval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toolName, err := request.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tool"), nil
	}

	if err := s.store.RecordApproval(ctx, toolName); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record approval: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]any{"tool": toolName, "approved": true})
	return mcp.NewToolResultText(string(data)), nil
}

// crew_scan_text
func (s *Server) scanTextTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crew_scan_text",
		mcp.WithDescription("Scan text for PII-like and secret-like patterns. Returns JSON with ok and any findings."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to scan")),
	)
	return tool, s.handleScanText
}

func (s *Server) handleScanText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}

	data, err := json.Marshal(scan.Text(text))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal scan result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
