package engine

import (
	"github.com/rendis/wayfind/pkg/schema"
)

// routeSuspend is the sentinel meaning "hold here and return to the caller".
const routeSuspend = schema.NodeID("")

// nextNode picks the outgoing edge for a node from the state alone. Routing
// is a pure function of state so a resumed run re-derives the same path the
// original run would have taken.
func nextNode(current schema.NodeID, state *schema.ExecutionState) (schema.NodeID, error) {
	switch current {
	case schema.NodeRouting:
		if state.IsComplexTask {
			return schema.NodePlanning, nil
		}
		return schema.NodeSynthesizing, nil

	case schema.NodePlanning:
		return schema.NodeApproval, nil

	case schema.NodeApproval:
		switch {
		case state.AwaitingInput:
			return routeSuspend, nil
		case state.Cancelled:
			// Cancel skips execution and synthesis entirely; reflection
			// still runs so the session's preferences are not lost.
			return schema.NodeReflecting, nil
		case state.UserFeedback != "":
			return schema.NodePlanning, nil
		default:
			return schema.NodeToolLoop, nil
		}

	case schema.NodeToolLoop:
		return schema.NodeSynthesizing, nil

	case schema.NodeSynthesizing:
		return schema.NodeReflecting, nil

	case schema.NodeReflecting:
		return schema.NodeDone, nil

	default:
		return routeSuspend, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"no route out of node %q", string(current))
	}
}
