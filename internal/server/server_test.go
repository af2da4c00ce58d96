package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/internal/engine"
	"github.com/rendis/wayfind/pkg/schema"
)

type stubSessions struct {
	startFn  func(ctx context.Context, userID, request string) (*engine.Result, error)
	resumeFn func(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error)
	statusFn func(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error)
	eventsFn func(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error)
}

func (s *stubSessions) Start(ctx context.Context, userID, request string) (*engine.Result, error) {
	return s.startFn(ctx, userID, request)
}

func (s *stubSessions) Resume(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error) {
	return s.resumeFn(ctx, sessionID, decision)
}

func (s *stubSessions) Status(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	return s.statusFn(ctx, sessionID)
}

func (s *stubSessions) Events(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error) {
	return s.eventsFn(ctx, sessionID, since)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_StartSession(t *testing.T) {
	stub := &stubSessions{
		startFn: func(ctx context.Context, userID, request string) (*engine.Result, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "make a podcast", request)
			return &engine.Result{
				SessionID:     "s1",
				Status:        schema.RunStatusSuspended,
				Node:          schema.NodeApproval,
				AwaitingInput: true,
				Prompt:        "Here is the plan",
			}, nil
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions",
		map[string]string{"user_id": "u1", "request": "make a podcast"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var res engine.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "s1", res.SessionID)
	assert.True(t, res.AwaitingInput)
	assert.Equal(t, "Here is the plan", res.Prompt)
}

func TestServer_StartValidationError(t *testing.T) {
	stub := &stubSessions{
		startFn: func(ctx context.Context, userID, request string) (*engine.Result, error) {
			return nil, schema.NewError(schema.ErrCodeValidation, "request text is required")
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", map[string]string{"user_id": "u1"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var res errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, schema.ErrCodeValidation, res.Code)
}

func TestServer_StartMalformedBody(t *testing.T) {
	called := false
	stub := &stubSessions{
		startFn: func(ctx context.Context, userID, request string) (*engine.Result, error) {
			called = true
			return nil, nil
		},
	}
	handler := New(stub, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestServer_ResumePassesDecision(t *testing.T) {
	stub := &stubSessions{
		resumeFn: func(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error) {
			assert.Equal(t, "s1", sessionID)
			assert.Equal(t, schema.DecisionModify, decision.Type)
			assert.Equal(t, "swap step two", decision.Feedback)
			return &engine.Result{SessionID: "s1", Status: schema.RunStatusSuspended, AwaitingInput: true}, nil
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions/s1/resume",
		map[string]string{"type": "modify", "feedback": "swap step two"})

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ResumeUnknownSessionIs404(t *testing.T) {
	stub := &stubSessions{
		resumeFn: func(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error) {
			return nil, schema.NewErrorf(schema.ErrCodeCheckpoint, "session not found: %s", sessionID)
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions/missing/resume",
		map[string]string{"type": "approve"})

	require.Equal(t, http.StatusNotFound, rec.Code)
	var res errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, schema.ErrCodeCheckpoint, res.Code)
}

func TestServer_ResumeConflictIs409(t *testing.T) {
	stub := &stubSessions{
		resumeFn: func(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error) {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %q is completed, not awaiting approval", sessionID)
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions/s1/resume",
		map[string]string{"type": "approve"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_StatusProjectsCheckpoint(t *testing.T) {
	state := schema.NewExecutionState("s1", "u1", "make a podcast")
	state.SubTasks = []string{"write scripts", "record audio"}
	state.AwaitingInput = true

	stub := &stubSessions{
		statusFn: func(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
			return &checkpoint.Checkpoint{
				SessionID: sessionID,
				Node:      schema.NodeApproval,
				Status:    schema.RunStatusSuspended,
				State:     state,
				Sequence:  3,
			}, nil
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions/s1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var res statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, schema.RunStatusSuspended, res.Status)
	assert.True(t, res.AwaitingInput)
	assert.Equal(t, []string{"write scripts", "record audio"}, res.SubTasks)
	assert.Equal(t, int64(3), res.Sequence)
}

func TestServer_EventsSinceFilter(t *testing.T) {
	var gotSince int64
	stub := &stubSessions{
		eventsFn: func(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error) {
			gotSince = since
			return []*checkpoint.Event{
				{SessionID: sessionID, Type: schema.EventPlanApproved, Sequence: 3},
			}, nil
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions/s1/events?since=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gotSince)

	var res struct {
		Events []*checkpoint.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, schema.EventPlanApproved, res.Events[0].Type)
}

func TestServer_EventsBadSince(t *testing.T) {
	stub := &stubSessions{
		eventsFn: func(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error) {
			t.Fatal("should not reach the engine")
			return nil, nil
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions/s1/events?since=later", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_EmptyEventsIsAnArray(t *testing.T) {
	stub := &stubSessions{
		eventsFn: func(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error) {
			return nil, nil
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions/s1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestServer_OpaqueErrorIs500(t *testing.T) {
	stub := &stubSessions{
		statusFn: func(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
			return nil, assert.AnError
		},
	}
	handler := New(stub, nil).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions/s1", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var res errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, schema.ErrCodeStore, res.Code)
	assert.Equal(t, "internal error", res.Message)
}

func TestServer_Healthz(t *testing.T) {
	handler := New(&stubSessions{}, nil).Handler()
	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
