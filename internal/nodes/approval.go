package nodes

import (
	"context"
	"encoding/json"

	"github.com/rendis/wayfind/internal/prompts"
	"github.com/rendis/wayfind/pkg/schema"
)

// Approval is the human gate between planning and execution. Running it
// presents the plan and marks the session as awaiting input; the engine then
// suspends the run until a resume decision arrives.
type Approval struct {
	sink EventSink
}

func NewApproval(sink EventSink) *Approval {
	return &Approval{sink: sinkOrNop(sink)}
}

func (a *Approval) ID() schema.NodeID { return schema.NodeApproval }

func (a *Approval) Run(ctx context.Context, state *schema.ExecutionState) error {
	if state.AwaitingInput {
		return nil
	}
	state.Append(schema.RoleAssistant, prompts.ApprovalMessage(state.SubTasks))
	state.AwaitingInput = true
	return nil
}

// Resolve applies a resume decision to a suspended state. It validates the
// decision and records the user's turn; the engine picks the next node from
// the resulting state.
func (a *Approval) Resolve(ctx context.Context, state *schema.ExecutionState, decision *schema.ResumeDecision) error {
	if !state.AwaitingInput {
		return schema.NewError(schema.ErrCodeInvalidTransition, "session is not awaiting approval")
	}
	if decision == nil {
		return schema.NewError(schema.ErrCodeValidation, "resume requires a decision")
	}
	if err := decision.Validate(); err != nil {
		return err
	}

	state.AwaitingInput = false
	switch decision.Type {
	case schema.DecisionApprove:
		state.Append(schema.RoleUser, "approve")
		a.sink.Emit(ctx, state.SessionID, a.ID(), schema.EventPlanApproved, nil)
	case schema.DecisionModify:
		state.Append(schema.RoleUser, decision.Feedback)
		state.UserFeedback = decision.Feedback
		payload, _ := json.Marshal(map[string]string{"feedback": decision.Feedback})
		a.sink.Emit(ctx, state.SessionID, a.ID(), schema.EventPlanModified, json.RawMessage(payload))
	case schema.DecisionCancel:
		state.Append(schema.RoleUser, "cancel")
		state.Cancelled = true
		a.sink.Emit(ctx, state.SessionID, a.ID(), schema.EventSessionCancelled, nil)
	}
	return nil
}
