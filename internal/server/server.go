// Package server exposes the session engine over HTTP. It is a thin
// adapter: every behavior lives in the engine, the server only maps
// requests and typed errors onto the wire.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/internal/engine"
	"github.com/rendis/wayfind/pkg/schema"
)

// Sessions is the engine surface the server depends on.
type Sessions interface {
	Start(ctx context.Context, userID, request string) (*engine.Result, error)
	Resume(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*engine.Result, error)
	Status(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error)
	Events(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error)
}

// Server is the HTTP control surface.
type Server struct {
	sessions Sessions
	logger   *slog.Logger
}

func New(sessions Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{sessions: sessions, logger: logger}
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/{sessionID}", s.handleStatus)
		r.Post("/{sessionID}/resume", s.handleResume)
		r.Get("/{sessionID}/events", s.handleEvents)
	})
	return r
}

type startRequest struct {
	UserID  string `json:"user_id"`
	Request string `json:"request"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}

	res, err := s.sessions.Start(r.Context(), body.UserID, body.Request)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type resumeRequest struct {
	Type     string `json:"type"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}

	res, err := s.sessions.Resume(r.Context(), sessionID, &schema.ResumeDecision{
		Type:     schema.DecisionType(body.Type),
		Feedback: body.Feedback,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusResponse exposes the checkpoint without its full internal state.
type statusResponse struct {
	SessionID     string           `json:"session_id"`
	Node          schema.NodeID    `json:"node"`
	Status        schema.RunStatus `json:"status"`
	AwaitingInput bool             `json:"awaiting_input"`
	SubTasks      []string         `json:"sub_tasks,omitempty"`
	FinalGuide    string           `json:"final_guide,omitempty"`
	Sequence      int64            `json:"sequence"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cp, err := s.sessions.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := statusResponse{
		SessionID: cp.SessionID,
		Node:      cp.Node,
		Status:    cp.Status,
		Sequence:  cp.Sequence,
	}
	if cp.State != nil {
		resp.AwaitingInput = cp.State.AwaitingInput
		resp.SubTasks = cp.State.SubTasks
		resp.FinalGuide = cp.State.FinalGuide
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, schema.NewError(schema.ErrCodeValidation, "since must be an integer"))
			return
		}
		since = parsed
	}

	events, err := s.sessions.Events(r.Context(), chi.URLParam(r, "sessionID"), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*checkpoint.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := schema.ErrCodeStore
	message := "internal error"

	var wfErr *schema.WayfindError
	if errors.As(err, &wfErr) {
		code = wfErr.Code
		message = wfErr.Message
	}

	status := http.StatusInternalServerError
	switch code {
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound, schema.ErrCodeCheckpoint:
		status = http.StatusNotFound
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeInvalidTransition:
		status = http.StatusConflict
	case schema.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
