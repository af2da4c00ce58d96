package nodes

import (
	"context"

	"github.com/rendis/wayfind/internal/llm"
	"github.com/rendis/wayfind/internal/prompts"
	"github.com/rendis/wayfind/internal/retry"
	"github.com/rendis/wayfind/pkg/schema"
)

// Router classifies the request as a complex multi-step task or a simple
// question. The decision is written once and never revisited for the run.
type Router struct {
	completer llm.Completer
	sink      EventSink
}

func NewRouter(completer llm.Completer, sink EventSink) *Router {
	return &Router{completer: completer, sink: sinkOrNop(sink)}
}

func (r *Router) ID() schema.NodeID { return schema.NodeRouting }

func (r *Router) Run(ctx context.Context, state *schema.ExecutionState) error {
	if state.Routed {
		return nil
	}

	var resp *llm.Response
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = r.completer.Complete(ctx, llm.Request{
			System:    prompts.RouterSystem,
			Messages:  []schema.Message{{Role: schema.RoleUser, Content: prompts.RouterUser(state.Request)}},
			ForceJSON: true,
		})
		return innerErr
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeRoutingFailure, "request classification failed").WithCause(err)
	}

	var verdict struct {
		IsComplex *bool `json:"is_complex"`
	}
	if err := llm.UnmarshalInto(resp.Text, &verdict); err != nil || verdict.IsComplex == nil {
		return schema.NewError(schema.ErrCodeRoutingFailure, "classification output is unparsable").WithCause(err)
	}

	state.IsComplexTask = *verdict.IsComplex
	state.Routed = true
	return nil
}
