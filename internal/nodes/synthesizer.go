package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/wayfind/internal/capability"
	"github.com/rendis/wayfind/internal/llm"
	"github.com/rendis/wayfind/internal/prompts"
	"github.com/rendis/wayfind/internal/retry"
	"github.com/rendis/wayfind/pkg/schema"
)

// Synthesizer writes the final guide. For a simple request it answers
// directly, optionally grounded in catalog retrieval. For a complex run it
// composes one section per sub-task in index order: a concrete tool guide
// where a recommendation cleared the threshold, a generic-method write-up
// where the sub-task fell back.
type Synthesizer struct {
	completer llm.Completer
	catalog   capability.Searcher
	sink      EventSink
}

func NewSynthesizer(completer llm.Completer, catalog capability.Searcher, sink EventSink) *Synthesizer {
	return &Synthesizer{completer: completer, catalog: catalog, sink: sinkOrNop(sink)}
}

func (s *Synthesizer) ID() schema.NodeID { return schema.NodeSynthesizing }

func (s *Synthesizer) Run(ctx context.Context, state *schema.ExecutionState) error {
	// The final guide is write-once per run.
	if state.FinalGuide != "" {
		return nil
	}

	var guide string
	var err error
	if state.IsComplexTask {
		guide, err = s.composeGuide(ctx, state)
	} else {
		guide, err = s.answerDirectly(ctx, state)
	}
	if err != nil {
		return err
	}

	state.FinalGuide = guide
	state.Append(schema.RoleAssistant, guide)
	s.sink.Emit(ctx, state.SessionID, s.ID(), schema.EventGuideComposed, nil)
	return nil
}

func (s *Synthesizer) answerDirectly(ctx context.Context, state *schema.ExecutionState) (string, error) {
	var docs []schema.RetrievedDoc
	if s.catalog != nil {
		// Best-effort enrichment; an empty catalog answer is still an answer.
		if found, err := s.catalog.Search(ctx, state.Request, 3); err == nil {
			docs = found
		}
	}

	resp, err := s.complete(ctx, llm.Request{
		System:   prompts.SimpleAnswerSystem,
		Messages: []schema.Message{{Role: schema.RoleUser, Content: prompts.SimpleAnswerUser(state.Request, docs)}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Synthesizer) composeGuide(ctx context.Context, state *schema.ExecutionState) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## Original request\n%s\n\n## Sub-task outcomes\n", state.Request)
	for i, task := range state.SubTasks {
		rec := state.Recommendations[i]
		fmt.Fprintf(&b, "\n### Sub-task %d: %s\n", i+1, task)
		switch {
		case rec == nil:
			b.WriteString("outcome: unresolved\n")
		case rec.Exhausted:
			b.WriteString("outcome: evaluation exhausted its budget; write a generic how-to section without naming a tool\n")
		case rec.Fallback:
			b.WriteString("outcome: no tool cleared the confidence bar; write a generic how-to section without naming a tool\n")
		default:
			fmt.Fprintf(&b, "outcome: recommend %q (score %.2f)\n", rec.Capability, rec.Score)
			if rec.Detail != "" {
				fmt.Fprintf(&b, "evidence: %s\n", rec.Detail)
			}
		}
	}
	b.WriteString("\nCompose the final guide covering every sub-task in order.")

	resp, err := s.complete(ctx, llm.Request{
		System:   prompts.GuideSystem,
		Messages: []schema.Message{{Role: schema.RoleUser, Content: b.String()}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Synthesizer) complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var resp *llm.Response
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = s.completer.Complete(ctx, req)
		return innerErr
	})
	return resp, err
}
