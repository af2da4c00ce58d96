package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/pkg/schema"
)

// TransitionHook is called before or after a node transition.
type TransitionHook func(from, to schema.NodeID) error

// EventAppender is satisfied by the checkpoint store; the FSM emits an audit
// event for every transition it admits.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *checkpoint.Event) error
}

type hookKey struct {
	from, to schema.NodeID
}

// NodeFSM validates transitions of the reasoning graph against a closed
// table. Cycles exist only where the table names them (re-planning after a
// modify decision); everything else is forward-only, which makes termination
// an inspection of the table rather than an argument about the code.
type NodeFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

func NewNodeFSM(appender EventAppender) *NodeFSM {
	return &NodeFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *NodeFSM) OnBefore(from, to schema.NodeID, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *NodeFSM) OnAfter(from, to schema.NodeID, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and records a node transition. The caller persists
// the checkpoint; the FSM only admits or rejects the edge.
func (f *NodeFSM) Transition(ctx context.Context, sessionID string, from, to schema.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidNodeTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid node transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": sessionID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if f.appender != nil {
		payload, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
		event := &checkpoint.Event{
			SessionID: sessionID,
			Node:      to,
			Type:      schema.EventNodeEntered,
			Payload:   payload,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit transition event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

func isValidNodeTransition(from, to schema.NodeID) bool {
	allowed, ok := ValidNodeTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

// ValidNodeTransitions is the closed edge set of the reasoning graph.
var ValidNodeTransitions = map[schema.NodeID][]schema.NodeID{
	schema.NodeRouting:      {schema.NodePlanning, schema.NodeSynthesizing},
	schema.NodePlanning:     {schema.NodeApproval},
	schema.NodeApproval:     {schema.NodeToolLoop, schema.NodePlanning, schema.NodeReflecting},
	schema.NodeToolLoop:     {schema.NodeSynthesizing},
	schema.NodeSynthesizing: {schema.NodeReflecting},
	schema.NodeReflecting:   {schema.NodeDone},
	schema.NodeDone:         {},
}
