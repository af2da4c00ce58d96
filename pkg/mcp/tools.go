package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/wayfind/pkg/schema"
)

// handleStart opens a new session and runs it until it suspends or finishes.
func (s *WayfindServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	request, err := req.RequireString("request")
	if err != nil {
		return mcp.NewToolResultError("request is required"), nil
	}
	userID := req.GetString("user_id", "")

	result, startErr := s.engine.Start(ctx, userID, request)
	if startErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", startErr)), nil
	}
	return marshalResult(result)
}

// handleResume applies an approval decision to a suspended session.
func (s *WayfindServer) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	decision, err := req.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError("decision is required"), nil
	}
	feedback := req.GetString("feedback", "")

	result, resumeErr := s.engine.Resume(ctx, sessionID, &schema.ResumeDecision{
		Type:     schema.DecisionType(decision),
		Feedback: feedback,
	})
	if resumeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resume failed: %v", resumeErr)), nil
	}
	return marshalResult(result)
}

// handleStatus returns the latest checkpoint projection for a session.
func (s *WayfindServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	cp, statusErr := s.engine.Status(ctx, sessionID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}

	out := map[string]any{
		"session_id": cp.SessionID,
		"node":       cp.Node,
		"status":     cp.Status,
		"sequence":   cp.Sequence,
	}
	if cp.State != nil {
		out["awaiting_input"] = cp.State.AwaitingInput
		if len(cp.State.SubTasks) > 0 {
			out["sub_tasks"] = cp.State.SubTasks
		}
		if cp.State.FinalGuide != "" {
			out["final_guide"] = cp.State.FinalGuide
		}
	}
	return marshalResult(out)
}

// handleEvents reads the audit log, optionally after a sequence number.
func (s *WayfindServer) handleEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var since int64
	if raw := req.GetString("since", ""); raw != "" {
		parsed, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return mcp.NewToolResultError("since must be an integer"), nil
		}
		since = parsed
	}

	events, eventsErr := s.engine.Events(ctx, sessionID, since)
	if eventsErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event query failed: %v", eventsErr)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
