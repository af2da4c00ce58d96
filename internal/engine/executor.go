package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/internal/logging"
	"github.com/rendis/wayfind/internal/nodes"
	"github.com/rendis/wayfind/pkg/schema"
)

// Graph is the wired node set the engine drives.
type Graph struct {
	Routing      nodes.Node
	Planning     nodes.Node
	Approval     *nodes.Approval
	ToolLoop     nodes.Node
	Synthesizing nodes.Node
	Reflecting   nodes.Node
}

// Options tunes engine behavior.
type Options struct {
	Logger *slog.Logger

	// LeaseTTL bounds how long a crashed runner can block a session.
	LeaseTTL time.Duration
}

// Result is the caller-facing outcome of a Start or Resume turn.
type Result struct {
	SessionID     string           `json:"session_id"`
	Status        schema.RunStatus `json:"status"`
	Node          schema.NodeID    `json:"node"`
	AwaitingInput bool             `json:"awaiting_input"`
	Prompt        string           `json:"prompt,omitempty"`
	FinalGuide    string           `json:"final_guide,omitempty"`
}

// Engine drives one logical run per session through the reasoning graph,
// checkpointing after every transition. A session has a single writer at a
// time: an in-process running set catches same-process races and the store
// lease catches cross-process ones.
type Engine struct {
	store    checkpoint.Store
	graph    Graph
	fsm      *NodeFSM
	logger   *slog.Logger
	leaseTTL time.Duration
	owner    string

	mu      sync.Mutex
	running map[string]struct{}
}

// New creates an engine over the given store and node graph.
func New(store checkpoint.Store, graph Graph, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.LeaseTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Engine{
		store:    store,
		graph:    graph,
		fsm:      NewNodeFSM(store),
		logger:   logger,
		leaseTTL: ttl,
		owner:    uuid.New().String(),
		running:  make(map[string]struct{}),
	}
}

// SetGraph replaces the node graph. Nodes take the engine itself as their
// event sink, so wiring happens in two steps: construct the engine, then
// install the nodes built against it.
func (e *Engine) SetGraph(graph Graph) {
	e.graph = graph
}

// Emit satisfies nodes.EventSink: nodes report audit events through the
// engine into the append-only log. Sink failures are logged, never raised.
func (e *Engine) Emit(ctx context.Context, sessionID string, node schema.NodeID, eventType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	err := e.store.AppendEvent(ctx, &checkpoint.Event{
		SessionID: sessionID,
		Node:      node,
		Type:      eventType,
		Payload:   raw,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "event append failed",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// Start creates a new session and drives it until it completes, suspends at
// the approval gate, or fails.
func (e *Engine) Start(ctx context.Context, userID, request string) (*Result, error) {
	if strings.TrimSpace(request) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "request text is required")
	}

	sessionID := uuid.New().String()
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx = logging.WithUserID(ctx, userID)

	if err := e.acquire(ctx, sessionID); err != nil {
		return nil, err
	}
	defer e.release(ctx, sessionID)

	state := schema.NewExecutionState(sessionID, userID, request)
	cp := &checkpoint.Checkpoint{
		SessionID: sessionID,
		Node:      schema.NodeRouting,
		Status:    schema.RunStatusActive,
		State:     state,
	}
	if err := e.save(ctx, cp); err != nil {
		return nil, err
	}
	e.Emit(ctx, sessionID, schema.NodeRouting, schema.EventSessionStarted, map[string]string{"user_id": userID})

	e.logger.InfoContext(ctx, "session started")
	return e.drive(ctx, cp, false)
}

// Resume applies a decision to a suspended session and drives it onward.
// An unknown session surfaces as "session not found".
func (e *Engine) Resume(ctx context.Context, sessionID string, decision *schema.ResumeDecision) (*Result, error) {
	ctx = logging.WithSessionID(ctx, sessionID)

	cp, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cp.Status != schema.RunStatusSuspended || cp.State == nil || !cp.State.AwaitingInput {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"session %q is %s, not awaiting approval", sessionID, string(cp.Status))
	}

	if err := e.acquire(ctx, sessionID); err != nil {
		return nil, err
	}
	defer e.release(ctx, sessionID)

	if err := e.graph.Approval.Resolve(ctx, cp.State, decision); err != nil {
		return nil, err
	}
	e.Emit(ctx, sessionID, schema.NodeApproval, schema.EventSessionResumed,
		map[string]string{"decision": string(decision.Type)})

	cp.Status = schema.RunStatusActive
	cp.Node = schema.NodeApproval
	if err := e.save(ctx, cp); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "session resumed", slog.String("decision", string(decision.Type)))
	// The approval node already ran before suspension; Resolve consumed the
	// decision, so driving skips re-running it.
	return e.drive(ctx, cp, true)
}

// Status returns the latest checkpoint for a session.
func (e *Engine) Status(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	return e.load(ctx, sessionID)
}

// Events returns the audit log for a session after the given sequence.
func (e *Engine) Events(ctx context.Context, sessionID string, since int64) ([]*checkpoint.Event, error) {
	return e.store.Events(ctx, sessionID, since)
}

// drive advances the session node by node until it suspends, terminates, or
// fails. A node failure leaves the last good checkpoint intact so the same
// turn can be retried.
func (e *Engine) drive(ctx context.Context, cp *checkpoint.Checkpoint, skipCurrent bool) (*Result, error) {
	for {
		if !skipCurrent {
			node := e.nodeFor(cp.Node)
			if node != nil {
				nodeCtx := logging.WithNodeID(ctx, string(cp.Node))
				e.logger.DebugContext(nodeCtx, "node start")
				if err := node.Run(nodeCtx, cp.State); err != nil {
					e.logger.ErrorContext(nodeCtx, "node failed", slog.String("error", err.Error()))
					e.Emit(ctx, cp.SessionID, cp.Node, schema.EventSessionFailed,
						map[string]string{"error": err.Error()})
					return nil, err
				}
			}
		}
		skipCurrent = false

		next, err := nextNode(cp.Node, cp.State)
		if err != nil {
			return nil, err
		}

		if next == routeSuspend {
			cp.Status = schema.RunStatusSuspended
			if err := e.save(ctx, cp); err != nil {
				return nil, err
			}
			e.Emit(ctx, cp.SessionID, cp.Node, schema.EventSessionSuspended, nil)
			e.logger.InfoContext(ctx, "session suspended for approval")
			return e.result(cp), nil
		}

		if err := e.fsm.Transition(ctx, cp.SessionID, cp.Node, next); err != nil {
			return nil, err
		}
		cp.Node = next

		if next == schema.NodeDone {
			terminalEvent := schema.EventSessionCompleted
			cp.Status = schema.RunStatusCompleted
			if cp.State.Cancelled {
				cp.Status = schema.RunStatusCancelled
				terminalEvent = schema.EventSessionCancelled
			}
			if err := e.save(ctx, cp); err != nil {
				return nil, err
			}
			e.Emit(ctx, cp.SessionID, next, terminalEvent, nil)
			e.logger.InfoContext(ctx, "session finished", slog.String("status", string(cp.Status)))
			return e.result(cp), nil
		}

		cp.Status = schema.RunStatusActive
		if err := e.save(ctx, cp); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) nodeFor(id schema.NodeID) nodes.Node {
	switch id {
	case schema.NodeRouting:
		return e.graph.Routing
	case schema.NodePlanning:
		return e.graph.Planning
	case schema.NodeApproval:
		return e.graph.Approval
	case schema.NodeToolLoop:
		return e.graph.ToolLoop
	case schema.NodeSynthesizing:
		return e.graph.Synthesizing
	case schema.NodeReflecting:
		return e.graph.Reflecting
	default:
		return nil
	}
}

func (e *Engine) result(cp *checkpoint.Checkpoint) *Result {
	res := &Result{
		SessionID:     cp.SessionID,
		Status:        cp.Status,
		Node:          cp.Node,
		AwaitingInput: cp.State.AwaitingInput,
		FinalGuide:    cp.State.FinalGuide,
	}
	if cp.State.AwaitingInput {
		for i := len(cp.State.Messages) - 1; i >= 0; i-- {
			if cp.State.Messages[i].Role == schema.RoleAssistant {
				res.Prompt = cp.State.Messages[i].Content
				break
			}
		}
	}
	return res
}

// acquire claims both the in-process slot and the store lease.
func (e *Engine) acquire(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	if _, busy := e.running[sessionID]; busy {
		e.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "session %q already has an active run", sessionID)
	}
	e.running[sessionID] = struct{}{}
	e.mu.Unlock()

	if err := e.store.Acquire(ctx, sessionID, e.owner, e.leaseTTL); err != nil {
		e.mu.Lock()
		delete(e.running, sessionID)
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Engine) release(ctx context.Context, sessionID string) {
	if err := e.store.Release(ctx, sessionID, e.owner); err != nil {
		e.logger.WarnContext(ctx, "lease release failed", slog.String("error", err.Error()))
	}
	e.mu.Lock()
	delete(e.running, sessionID)
	e.mu.Unlock()
}

func (e *Engine) save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	cp.Sequence++
	cp.SavedAt = time.Now().UTC()
	if err := e.store.Save(ctx, cp); err != nil {
		return schema.NewError(schema.ErrCodeStore, "checkpoint write failed").WithCause(err)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	cp, err := e.store.Load(ctx, sessionID)
	if err != nil {
		var wfErr *schema.WayfindError
		if errors.As(err, &wfErr) && wfErr.Code == schema.ErrCodeNotFound {
			return nil, schema.NewErrorf(schema.ErrCodeCheckpoint, "session not found: %s", sessionID).WithCause(err)
		}
		return nil, err
	}
	return cp, nil
}
