package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/internal/engine"
	"github.com/rendis/wayfind/pkg/schema"
)

// --- Mock engine ---

type mockEngine struct {
	startResult  *engine.Result
	startErr     error
	resumeResult *engine.Result
	resumeErr    error
	statusResult *checkpoint.Checkpoint
	statusErr    error
	events       []*checkpoint.Event
	eventsErr    error

	lastDecision *schema.ResumeDecision
	lastSince    int64
}

func (m *mockEngine) Start(_ context.Context, _, _ string) (*engine.Result, error) {
	return m.startResult, m.startErr
}

func (m *mockEngine) Resume(_ context.Context, _ string, decision *schema.ResumeDecision) (*engine.Result, error) {
	m.lastDecision = decision
	return m.resumeResult, m.resumeErr
}

func (m *mockEngine) Status(_ context.Context, _ string) (*checkpoint.Checkpoint, error) {
	return m.statusResult, m.statusErr
}

func (m *mockEngine) Events(_ context.Context, _ string, since int64) ([]*checkpoint.Event, error) {
	m.lastSince = since
	return m.events, m.eventsErr
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

// --- Tests ---

func TestStartTool(t *testing.T) {
	eng := &mockEngine{
		startResult: &engine.Result{
			SessionID:     "s1",
			Status:        schema.RunStatusSuspended,
			Node:          schema.NodeApproval,
			AwaitingInput: true,
			Prompt:        "1. write scripts",
		},
	}
	s := NewWayfindServer(WayfindServerDeps{Engine: eng})

	result, err := s.handleStart(context.Background(), buildRequest("wayfind.start", map[string]any{
		"request": "I want to make a podcast",
		"user_id": "u1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out engine.Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "s1", out.SessionID)
	assert.True(t, out.AwaitingInput)
}

func TestStartToolRequiresRequest(t *testing.T) {
	s := NewWayfindServer(WayfindServerDeps{Engine: &mockEngine{}})

	result, err := s.handleStart(context.Background(), buildRequest("wayfind.start", map[string]any{
		"user_id": "u1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestResumeToolPassesDecision(t *testing.T) {
	eng := &mockEngine{
		resumeResult: &engine.Result{SessionID: "s1", Status: schema.RunStatusCompleted, Node: schema.NodeDone},
	}
	s := NewWayfindServer(WayfindServerDeps{Engine: eng})

	result, err := s.handleResume(context.Background(), buildRequest("wayfind.resume", map[string]any{
		"session_id": "s1",
		"decision":   "modify",
		"feedback":   "merge steps one and two",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.NotNil(t, eng.lastDecision)
	assert.Equal(t, schema.DecisionModify, eng.lastDecision.Type)
	assert.Equal(t, "merge steps one and two", eng.lastDecision.Feedback)
}

func TestResumeToolEngineErrorIsToolError(t *testing.T) {
	eng := &mockEngine{
		resumeErr: schema.NewErrorf(schema.ErrCodeCheckpoint, "session not found: s1"),
	}
	s := NewWayfindServer(WayfindServerDeps{Engine: eng})

	result, err := s.handleResume(context.Background(), buildRequest("wayfind.resume", map[string]any{
		"session_id": "s1",
		"decision":   "approve",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusToolProjectsState(t *testing.T) {
	state := schema.NewExecutionState("s1", "u1", "make a podcast")
	state.SubTasks = []string{"write scripts", "record audio"}
	state.AwaitingInput = true

	eng := &mockEngine{
		statusResult: &checkpoint.Checkpoint{
			SessionID: "s1",
			Node:      schema.NodeApproval,
			Status:    schema.RunStatusSuspended,
			State:     state,
			Sequence:  2,
		},
	}
	s := NewWayfindServer(WayfindServerDeps{Engine: eng})

	result, err := s.handleStatus(context.Background(), buildRequest("wayfind.status", map[string]any{
		"session_id": "s1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "suspended", out["status"])
	assert.Equal(t, true, out["awaiting_input"])
	assert.Len(t, out["sub_tasks"], 2)
	assert.NotContains(t, out, "final_guide")
}

func TestEventsToolSinceFilter(t *testing.T) {
	eng := &mockEngine{
		events: []*checkpoint.Event{
			{SessionID: "s1", Type: schema.EventPlanApproved, Sequence: 3},
		},
	}
	s := NewWayfindServer(WayfindServerDeps{Engine: eng})

	result, err := s.handleEvents(context.Background(), buildRequest("wayfind.events", map[string]any{
		"session_id": "s1",
		"since":      "2",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, int64(2), eng.lastSince)

	var out struct {
		Events []*checkpoint.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out.Events, 1)
	assert.Equal(t, schema.EventPlanApproved, out.Events[0].Type)
}

func TestEventsToolBadSince(t *testing.T) {
	s := NewWayfindServer(WayfindServerDeps{Engine: &mockEngine{}})

	result, err := s.handleEvents(context.Background(), buildRequest("wayfind.events", map[string]any{
		"session_id": "s1",
		"since":      "later",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServerRegistersTools(t *testing.T) {
	s := NewWayfindServer(WayfindServerDeps{Engine: &mockEngine{}})
	require.NotNil(t, s.MCPServer())
	assert.Len(t, s.tools(), 4)
}
