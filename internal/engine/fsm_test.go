package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/pkg/schema"
)

func TestNodeFSM_ValidTransitionEmitsEvent(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	fsm := NewNodeFSM(store)

	require.NoError(t, fsm.Transition(context.Background(), "s1", schema.NodeRouting, schema.NodePlanning))

	events, err := store.Events(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventNodeEntered, events[0].Type)
	assert.Equal(t, schema.NodePlanning, events[0].Node)
}

func TestNodeFSM_InvalidTransition(t *testing.T) {
	fsm := NewNodeFSM(checkpoint.NewMemoryStore())

	err := fsm.Transition(context.Background(), "s1", schema.NodeRouting, schema.NodeToolLoop)
	require.Error(t, err)

	var wfErr *schema.WayfindError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, schema.ErrCodeInvalidTransition, wfErr.Code)
}

func TestNodeFSM_DoneIsTerminal(t *testing.T) {
	fsm := NewNodeFSM(checkpoint.NewMemoryStore())

	for _, to := range []schema.NodeID{
		schema.NodeRouting, schema.NodePlanning, schema.NodeApproval,
		schema.NodeToolLoop, schema.NodeSynthesizing, schema.NodeReflecting,
	} {
		assert.Error(t, fsm.Transition(context.Background(), "s1", schema.NodeDone, to), "done -> %s", to)
	}
}

func TestNodeFSM_ReplanningIsTheOnlyCycle(t *testing.T) {
	// Every backward edge except approval -> planning is rejected.
	assert.True(t, isValidNodeTransition(schema.NodeApproval, schema.NodePlanning))
	assert.False(t, isValidNodeTransition(schema.NodePlanning, schema.NodeRouting))
	assert.False(t, isValidNodeTransition(schema.NodeToolLoop, schema.NodeApproval))
	assert.False(t, isValidNodeTransition(schema.NodeSynthesizing, schema.NodeToolLoop))
	assert.False(t, isValidNodeTransition(schema.NodeReflecting, schema.NodeSynthesizing))
}

func TestNodeFSM_Hooks(t *testing.T) {
	fsm := NewNodeFSM(checkpoint.NewMemoryStore())

	var order []string
	fsm.OnBefore(schema.NodeRouting, schema.NodePlanning, func(from, to schema.NodeID) error {
		order = append(order, "before")
		return nil
	})
	fsm.OnAfter(schema.NodeRouting, schema.NodePlanning, func(from, to schema.NodeID) error {
		order = append(order, "after")
		return nil
	})

	require.NoError(t, fsm.Transition(context.Background(), "s1", schema.NodeRouting, schema.NodePlanning))
	assert.Equal(t, []string{"before", "after"}, order)
}

func TestNextNode_ApprovalBranches(t *testing.T) {
	state := schema.NewExecutionState("s1", "u1", "x")

	state.AwaitingInput = true
	next, err := nextNode(schema.NodeApproval, state)
	require.NoError(t, err)
	assert.Equal(t, routeSuspend, next)

	state.AwaitingInput = false
	state.Cancelled = true
	next, err = nextNode(schema.NodeApproval, state)
	require.NoError(t, err)
	assert.Equal(t, schema.NodeReflecting, next)

	state.Cancelled = false
	state.UserFeedback = "change it"
	next, err = nextNode(schema.NodeApproval, state)
	require.NoError(t, err)
	assert.Equal(t, schema.NodePlanning, next)

	state.UserFeedback = ""
	next, err = nextNode(schema.NodeApproval, state)
	require.NoError(t, err)
	assert.Equal(t, schema.NodeToolLoop, next)
}

func TestNextNode_RoutingBranches(t *testing.T) {
	state := schema.NewExecutionState("s1", "u1", "x")

	state.IsComplexTask = true
	next, err := nextNode(schema.NodeRouting, state)
	require.NoError(t, err)
	assert.Equal(t, schema.NodePlanning, next)

	state.IsComplexTask = false
	next, err = nextNode(schema.NodeRouting, state)
	require.NoError(t, err)
	assert.Equal(t, schema.NodeSynthesizing, next)
}
