package nodes

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rendis/wayfind/internal/capability"
	"github.com/rendis/wayfind/internal/llm"
	"github.com/rendis/wayfind/internal/memory"
	"github.com/rendis/wayfind/internal/prompts"
	"github.com/rendis/wayfind/internal/retry"
	"github.com/rendis/wayfind/pkg/schema"
)

// Pool is the bounded submission surface for parallel sub-task evaluation.
type Pool interface {
	Submit(ctx context.Context, fn func(ctx context.Context) error) error
	Wait()
}

// ToolLoop resolves every pending sub-task through a bounded
// reason-act-observe cycle. Each sub-task ends in exactly one terminal
// decision: a named recommendation when the top retrieval score clears the
// threshold, a fallback marker when it does not, or an exhausted marker when
// the iteration bound is hit.
//
// Sub-tasks are independent, so with a pool wired they are evaluated with
// bounded fan-out; results merge strictly by sub-task index regardless of
// completion order.
type ToolLoop struct {
	completer llm.Completer
	registry  *capability.Registry
	profiles  memory.Store
	pool      Pool
	cfg       Config
	sink      EventSink
}

func NewToolLoop(completer llm.Completer, registry *capability.Registry, profiles memory.Store, pool Pool, cfg Config, sink EventSink) *ToolLoop {
	return &ToolLoop{
		completer: completer,
		registry:  registry,
		profiles:  profiles,
		pool:      pool,
		cfg:       cfg.Normalize(),
		sink:      sinkOrNop(sink),
	}
}

func (t *ToolLoop) ID() schema.NodeID { return schema.NodeToolLoop }

// taskResult is one sub-task's private evaluation outcome, merged into the
// shared state in index order.
type taskResult struct {
	index int
	rec   *schema.Recommendation
	turns []schema.Message
	docs  []schema.RetrievedDoc
}

func (t *ToolLoop) Run(ctx context.Context, state *schema.ExecutionState) error {
	var pending []int
	for i := state.CurrentTask; i < len(state.SubTasks); i++ {
		if _, done := state.Recommendations[i]; !done {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	profile := t.profileSummary(ctx, state.UserID)

	results := make([]*taskResult, len(pending))
	if t.pool != nil && t.cfg.FanOut > 1 && len(pending) > 1 {
		// Under fan-out there is no single current sub-task, so the shared
		// loop sub-state stays untouched until the merge.
		var wg sync.WaitGroup
		for slot, index := range pending {
			task := state.SubTasks[index]
			sessionID := state.SessionID
			wg.Add(1)
			err := t.pool.Submit(ctx, func(ctx context.Context) error {
				defer wg.Done()
				results[slot] = t.resolveTask(ctx, sessionID, index, task, profile, nil)
				return nil
			})
			if err != nil {
				wg.Done()
				results[slot] = t.resolveTask(ctx, sessionID, index, task, profile, nil)
			}
		}
		wg.Wait()
	} else {
		for slot, index := range pending {
			results[slot] = t.resolveTask(ctx, state.SessionID, index, state.SubTasks[index], profile, state)
		}
	}

	// Merge in sub-task index order so the message log and the guide are
	// deterministic given identical collaborator responses.
	for _, res := range results {
		state.Messages = append(state.Messages, res.turns...)
		state.Recommendations[res.index] = res.rec
		state.Retrieved = res.docs
		t.emitDecision(ctx, state.SessionID, res.rec)
	}
	// Advance past every resolved sub-task, including any resolved before
	// this pass; AdvanceTask resets the per-task scratch.
	for state.CurrentTask < len(state.SubTasks) {
		if _, done := state.Recommendations[state.CurrentTask]; !done {
			break
		}
		state.AdvanceTask()
	}
	state.UpdatedAt = time.Now().UTC()
	return nil
}

// resolveTask drives the bounded cycle for a single sub-task. Turns and the
// terminal decision are private and merged by the caller. In the sequential
// path mirror is the shared state: the guard counter is kept there and a
// requested call is parked in PendingCall until its observation lands, so the
// record carries the "action requested" sub-state while it is real.
func (t *ToolLoop) resolveTask(ctx context.Context, sessionID string, index int, task, profile string, mirror *schema.ExecutionState) *taskResult {
	res := &taskResult{index: index}

	for iter := 1; iter <= t.cfg.MaxIterations; iter++ {
		if mirror != nil {
			mirror.Iterations = iter
		}
		messages := make([]schema.Message, 0, len(res.turns)+1)
		messages = append(messages, schema.Message{
			Role:    schema.RoleUser,
			Content: prompts.RecommendUser(task, profile, observationCount(res.turns)),
		})
		messages = append(messages, res.turns...)

		var resp *llm.Response
		err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
			var innerErr error
			resp, innerErr = t.completer.Complete(ctx, llm.Request{
				System:       prompts.RecommendSystem,
				Messages:     messages,
				Capabilities: t.registry.List(),
			})
			return innerErr
		})
		if err != nil {
			// Collaborator failure after retries is absorbed as a failure
			// observation; the loop decides on evidence or exhausts.
			res.turns = append(res.turns, observation("", "reasoning step failed: "+err.Error()))
			continue
		}

		if resp.Call == nil {
			res.turns = append(res.turns, schema.Message{
				Role: schema.RoleAssistant, Content: resp.Text, At: time.Now().UTC(),
			})
			continue
		}

		if mirror != nil {
			mirror.PendingCall = resp.Call
		}
		t.emitCall(ctx, sessionID, schema.EventCapabilityInvoked, resp.Call, index)
		result, err := t.registry.Invoke(ctx, resp.Call)
		if err != nil {
			res.turns = append(res.turns, observation(resp.Call.Capability, "invocation failed: "+err.Error()))
			t.emitCall(ctx, sessionID, schema.EventCapabilityFailed, resp.Call, index)
			if mirror != nil {
				mirror.PendingCall = nil
			}
			continue
		}
		res.turns = append(res.turns, observation(resp.Call.Capability, truncate(string(result.Data), 4000)))
		// The call is consumed once its observation is recorded.
		if mirror != nil {
			mirror.PendingCall = nil
		}

		if len(result.Docs) > 0 {
			// Threshold policy: the first retrieval-scored observation is the
			// terminal decision for this sub-task. Equality clears the bar.
			res.docs = result.Docs
			top := result.Docs[0]
			if top.Score >= t.cfg.ScoreThreshold {
				res.rec = &schema.Recommendation{
					TaskIndex:  index,
					Capability: top.Name,
					Score:      top.Score,
					Detail:     top.Text,
				}
			} else {
				res.rec = &schema.Recommendation{TaskIndex: index, Fallback: true, Score: top.Score}
			}
			return res
		}
	}

	// Iteration bound hit without a decision. Distinct from threshold
	// fallback so dashboards can tell the two apart.
	res.rec = &schema.Recommendation{TaskIndex: index, Fallback: true, Exhausted: true}
	return res
}

func (t *ToolLoop) emitDecision(ctx context.Context, sessionID string, rec *schema.Recommendation) {
	eventType := schema.EventTaskRecommended
	switch {
	case rec.Exhausted:
		eventType = schema.EventTaskExhausted
	case rec.Fallback:
		eventType = schema.EventTaskFallback
	}
	payload, _ := json.Marshal(rec)
	t.sink.Emit(ctx, sessionID, t.ID(), eventType, json.RawMessage(payload))
}

func (t *ToolLoop) emitCall(ctx context.Context, sessionID, eventType string, call *schema.CapabilityCall, index int) {
	payload, _ := json.Marshal(map[string]any{"capability": call.Capability, "task_index": index})
	t.sink.Emit(ctx, sessionID, t.ID(), eventType, json.RawMessage(payload))
}

func (t *ToolLoop) profileSummary(ctx context.Context, userID string) string {
	if t.profiles == nil || userID == "" {
		return ""
	}
	profile, err := t.profiles.LoadProfile(ctx, userID)
	if err != nil {
		return ""
	}
	b, err := json.Marshal(profile)
	if err != nil {
		return ""
	}
	return string(b)
}

func observation(capabilityName, content string) schema.Message {
	return schema.Message{
		Role:       schema.RoleTool,
		Capability: capabilityName,
		Content:    content,
		At:         time.Now().UTC(),
	}
}

func observationCount(turns []schema.Message) int {
	n := 0
	for _, m := range turns {
		if m.Role == schema.RoleTool {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
