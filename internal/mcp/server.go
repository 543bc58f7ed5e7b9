// Package mcp exposes the review engine and session index as MCP tools over
// stdio, so agent frontends can drive reviews natively.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/store"
)

// Reviewer runs the iterative review loop over a pull request.
type Reviewer interface {
	ProcessPullRequest(ctx context.Context, pullRequestID int) (*models.BatchResult, error)
}

// Server wraps the review data layer and engine as MCP tools.
type Server struct {
	store    store.Store
	reviewer Reviewer
}

// NewServer creates the MCP server wrapper with its dependencies.
func NewServer(s store.Store, r Reviewer) *Server {
	return &Server{store: s, reviewer: r}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("reviewloop", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.reviewPRTool())
	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.getSessionTool())

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

// review_pr
func (s *Server) reviewPRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_pr",
		mcp.WithDescription("Run the iterative AI review loop over every changed file of a pull request. Returns the per-file batch result as JSON."),
		mcp.WithString("pull_request_id", mcp.Required(), mcp.Description("Pull request ID")),
	)
	return tool, s.handleReviewPR
}

func (s *Server) handleReviewPR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("pull_request_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: pull_request_id"), nil
	}
	prID, err := strconv.Atoi(raw)
	if err != nil || prID <= 0 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid pull_request_id: %s", raw)), nil
	}

	batch, err := s.reviewer.ProcessPullRequest(ctx, prID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal batch result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// review_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_list_sessions",
		mcp.WithDescription("List past review sessions, newest first. Returns a JSON array with id, pull request, file, iterations, and outcome."),
		mcp.WithString("pull_request_id", mcp.Description("Filter by pull request ID")),
		mcp.WithString("limit", mcp.Description("Maximum number of sessions to return")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prID := 0
	if raw := request.GetString("pull_request_id", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid pull_request_id: %s", raw)), nil
		}
		prID = n
	}
	limit := 0
	if raw := request.GetString("limit", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", raw)), nil
		}
		limit = n
	}

	sessions, err := s.store.ListReviewSessions(ctx, prID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID                  string `json:"id"`
		PullRequestID       int    `json:"pull_request_id"`
		FilePath            string `json:"file_path"`
		IterationsCompleted int    `json:"iterations_completed"`
		AllResolved         bool   `json:"all_resolved"`
		Outcome             string `json:"outcome"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:                  sess.ID,
			PullRequestID:       sess.PullRequestID,
			FilePath:            sess.FilePath,
			IterationsCompleted: sess.IterationsCompleted,
			AllResolved:         sess.AllResolved,
			Outcome:             string(sess.Outcome),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// review_get_session
func (s *Server) getSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_get_session",
		mcp.WithDescription("Get one review session with its full iteration audit trail as JSON."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	)
	return tool, s.handleGetSession
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	session, err := s.store.GetReviewSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}
	records, err := s.store.ListIterationRecords(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load iteration records: %v", err)), nil
	}

	out := struct {
		Session    *models.ReviewSession     `json:"session"`
		Iterations []*models.IterationRecord `json:"iterations"`
	}{session, records}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
