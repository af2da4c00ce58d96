package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rendis/wayfind/internal/llm"
	"github.com/rendis/wayfind/internal/memory"
	"github.com/rendis/wayfind/internal/prompts"
	"github.com/rendis/wayfind/internal/retry"
	"github.com/rendis/wayfind/pkg/schema"
)

// Reflection extracts durable user preferences from the finished conversation
// and merges them into the profile store. It runs on completed and cancelled
// sessions alike, and its failures never fail the run: a lost reflection is
// logged, not surfaced.
type Reflection struct {
	completer llm.Completer
	profiles  memory.Store
	logger    *slog.Logger
	sink      EventSink
}

func NewReflection(completer llm.Completer, profiles memory.Store, logger *slog.Logger, sink EventSink) *Reflection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflection{completer: completer, profiles: profiles, logger: logger, sink: sinkOrNop(sink)}
}

func (r *Reflection) ID() schema.NodeID { return schema.NodeReflecting }

type extractedPreferences struct {
	PreferredCategories []string `json:"preferred_categories"`
	PricePreference     string   `json:"price_preference"`
	Interests           []string `json:"interests"`
	SkillLevel          string   `json:"skill_level"`
}

func (r *Reflection) Run(ctx context.Context, state *schema.ExecutionState) error {
	if r.profiles == nil || state.UserID == "" {
		return nil
	}

	if err := r.reflect(ctx, state); err != nil {
		wrapped := schema.NewError(schema.ErrCodeReflectionWrite, "reflection write failed").WithCause(err)
		r.logger.WarnContext(ctx, "reflection skipped",
			slog.String("error", wrapped.Error()),
			slog.String("cause", err.Error()),
		)
		r.sink.Emit(ctx, state.SessionID, r.ID(), schema.EventReflectionFailed, nil)
		return nil
	}

	r.sink.Emit(ctx, state.SessionID, r.ID(), schema.EventReflectionStored, nil)
	return nil
}

func (r *Reflection) reflect(ctx context.Context, state *schema.ExecutionState) error {
	existing, err := r.profiles.LoadProfile(ctx, state.UserID)
	if err != nil && !errors.Is(err, memory.ErrProfileNotFound) {
		return err
	}

	existingJSON := ""
	if existing != nil {
		if b, merr := json.Marshal(existing); merr == nil {
			existingJSON = string(b)
		}
	}

	var resp *llm.Response
	err = retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = r.completer.Complete(ctx, llm.Request{
			System: prompts.ReflectionSystem,
			Messages: []schema.Message{{
				Role:    schema.RoleUser,
				Content: prompts.ReflectionUser(prompts.Conversation(state.Messages), existingJSON),
			}},
			ForceJSON: true,
		})
		return innerErr
	})
	if err != nil {
		return err
	}

	var prefs extractedPreferences
	if err := llm.UnmarshalInto(resp.Text, &prefs); err != nil {
		return err
	}

	update := &memory.Profile{
		UserID:              state.UserID,
		PreferredCategories: prefs.PreferredCategories,
		PricePreference:     prefs.PricePreference,
		Interests:           prefs.Interests,
		SkillLevel:          prefs.SkillLevel,
		UpdatedAt:           time.Now().UTC(),
	}
	merged := memory.Merge(existing, update)
	return r.profiles.SaveProfile(ctx, merged)
}
