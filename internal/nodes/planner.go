package nodes

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rendis/wayfind/internal/llm"
	"github.com/rendis/wayfind/internal/memory"
	"github.com/rendis/wayfind/internal/prompts"
	"github.com/rendis/wayfind/internal/retry"
	"github.com/rendis/wayfind/pkg/schema"
)

// Planner decomposes a complex request into 2 to 5 ordered sub-tasks.
// When user feedback is pending this is a re-planning pass: the new plan is
// derived from the original request plus the feedback, and the feedback is
// consumed so it cannot leak into a later pass.
type Planner struct {
	completer llm.Completer
	profiles  memory.Store
	sink      EventSink
}

func NewPlanner(completer llm.Completer, profiles memory.Store, sink EventSink) *Planner {
	return &Planner{completer: completer, profiles: profiles, sink: sinkOrNop(sink)}
}

func (p *Planner) ID() schema.NodeID { return schema.NodePlanning }

type planOutput struct {
	Analysis string   `json:"analysis"`
	SubTasks []string `json:"subtasks"`
}

func (p *Planner) Run(ctx context.Context, state *schema.ExecutionState) error {
	feedback := state.UserFeedback
	replanning := feedback != ""
	previous := append([]string(nil), state.SubTasks...)

	var system, user string
	if replanning {
		system = prompts.ModifyPlanSystem
		user = prompts.ModifyPlanUser(state.Request, previous, feedback)
	} else {
		system = prompts.PlannerSystem
		user = prompts.PlannerUser(state.Request, p.profileSummary(ctx, state.UserID))
	}

	// One bounded retry of the decomposition when the sub-task count lands
	// outside [2,5]; a second violation fails the turn.
	var plan planOutput
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		plan, lastErr = p.decompose(ctx, system, user)
		if lastErr == nil && len(plan.SubTasks) >= minSubTasks && len(plan.SubTasks) <= maxSubTasks {
			lastErr = nil
			break
		}
		if lastErr == nil {
			lastErr = schema.NewErrorf(schema.ErrCodePlanSchemaViolation,
				"plan has %d sub-tasks, want between %d and %d", len(plan.SubTasks), minSubTasks, maxSubTasks)
		}
	}
	if lastErr != nil {
		var wfErr *schema.WayfindError
		if errors.As(lastErr, &wfErr) {
			return lastErr
		}
		return schema.NewError(schema.ErrCodePlanSchemaViolation, "plan decomposition failed").WithCause(lastErr)
	}

	if replanning {
		state.ResetPlan()
		state.UserFeedback = ""
	}
	state.SubTasks = plan.SubTasks
	if plan.Analysis != "" {
		state.Append(schema.RoleAssistant, plan.Analysis)
	}

	eventType := schema.EventPlanProposed
	if replanning {
		eventType = schema.EventPlanModified
	}
	payload, _ := json.Marshal(map[string]any{"sub_tasks": plan.SubTasks})
	p.sink.Emit(ctx, state.SessionID, p.ID(), eventType, json.RawMessage(payload))
	return nil
}

func (p *Planner) decompose(ctx context.Context, system, user string) (planOutput, error) {
	var resp *llm.Response
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = p.completer.Complete(ctx, llm.Request{
			System:    system,
			Messages:  []schema.Message{{Role: schema.RoleUser, Content: user}},
			ForceJSON: true,
		})
		return innerErr
	})
	if err != nil {
		return planOutput{}, err
	}

	var plan planOutput
	if err := llm.UnmarshalInto(resp.Text, &plan); err != nil {
		return planOutput{}, err
	}
	return plan, nil
}

func (p *Planner) profileSummary(ctx context.Context, userID string) string {
	if p.profiles == nil || userID == "" {
		return ""
	}
	profile, err := p.profiles.LoadProfile(ctx, userID)
	if err != nil {
		return ""
	}
	b, err := json.Marshal(profile)
	if err != nil {
		return ""
	}
	return string(b)
}
