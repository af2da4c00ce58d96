// Package capability defines the closed, explicitly registered set of
// callable contracts available to the tool loop. Model output naming a
// capability is untrusted and is validated against the registered input
// schema before dispatch.
package capability

import (
	"context"
	"encoding/json"

	"github.com/rendis/wayfind/pkg/schema"
)

// Capability is an executable unit of work invokable from the tool loop.
type Capability interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of a capability execution.
type Result struct {
	// Data is the raw observation appended to the message log.
	Data json.RawMessage `json:"data,omitempty"`
	// Docs is non-empty for retrieval-shaped results; these also land in the
	// state's retrieved-context scratch.
	Docs []schema.RetrievedDoc `json:"docs,omitempty"`
}

// Info is a summary of a registered capability, handed to the language-model
// collaborator so it can emit structured calls.
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}
