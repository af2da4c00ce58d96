package capability

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rendis/wayfind/internal/memory"
	"github.com/rendis/wayfind/pkg/schema"
)

// MemoryRead exposes the long-term preference store to the reasoning loop.
// Writes stay with the reflection writer; the loop only reads.
type MemoryRead struct {
	profiles memory.Store
}

// NewMemoryRead creates the long-term-memory read capability.
func NewMemoryRead(profiles memory.Store) *MemoryRead {
	return &MemoryRead{profiles: profiles}
}

func (m *MemoryRead) Name() string { return "memory_read" }

func (m *MemoryRead) Description() string {
	return "Read the user's long-term preference profile (categories, price preference, interests, skill level)"
}

func (m *MemoryRead) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["user_id"],
  "properties": {
    "user_id": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`)
}

func (m *MemoryRead) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	userID, _ := args["user_id"].(string)

	profile, err := m.profiles.LoadProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, memory.ErrProfileNotFound) {
			data, _ := json.Marshal(map[string]any{"user_id": userID, "profile": nil})
			return &Result{Data: data}, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeCapability, "load profile: %s", err.Error()).WithCause(err)
	}

	data, err := json.Marshal(map[string]any{"user_id": userID, "profile": profile})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "marshal profile").WithCause(err)
	}
	return &Result{Data: data}, nil
}
