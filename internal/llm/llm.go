package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/wayfind/internal/capability"
	"github.com/rendis/wayfind/pkg/schema"
)

// ErrNotConfigured is returned when a provider is used before initialization.
var ErrNotConfigured = errors.New("llm provider not configured")

// Request is a single completion turn. When Capabilities is non-empty the
// provider advertises them and the response may carry a capability call
// instead of plain text. ForceJSON constrains output to strict JSON,
// optionally against Schema.
type Request struct {
	System       string
	Messages     []schema.Message
	Capabilities []capability.Info
	ForceJSON    bool
	Schema       any
}

// Response is either free text or a parsed capability call, never both.
type Response struct {
	Text string
	Call *schema.CapabilityCall
}

// Completer is the single boundary the workflow nodes see. Providers are
// interchangeable behind it.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Config selects and tunes a provider backend.
type Config struct {
	Backend    string // "gemini" or "ollama"
	Model      string
	APIKey     string
	OllamaHost string
}

// New builds the configured provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "gemini"
	}
	switch backend {
	case "gemini":
		return newGemini(ctx, cfg)
	case "ollama":
		return newOllama(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm backend: %s", backend)
	}
}

// renderPrompt flattens a conversation into a single prompt. Both backends
// consume plain prompts; role markers keep turns distinguishable.
func renderPrompt(req Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	if len(req.Capabilities) > 0 {
		b.WriteString("Available capabilities:\n")
		for _, info := range req.Capabilities {
			fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
			if len(info.InputSchema) > 0 {
				fmt.Fprintf(&b, "  input schema: %s\n", string(info.InputSchema))
			}
		}
		b.WriteString("\nTo invoke a capability respond with JSON only: ")
		b.WriteString(`{"capability": "<name>", "args": {...}}`)
		b.WriteString("\nTo answer directly respond with JSON only: ")
		b.WriteString(`{"answer": "<text>"}`)
		b.WriteString("\n\n")
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case schema.RoleUser:
			b.WriteString("User: ")
		case schema.RoleAssistant:
			b.WriteString("Assistant: ")
		case schema.RoleTool:
			fmt.Fprintf(&b, "Observation (%s): ", msg.Capability)
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// finish converts raw model text into a Response, extracting a capability
// call when the request advertised capabilities.
func finish(req Request, text string) (*Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("llm: empty completion")
	}
	if len(req.Capabilities) == 0 {
		return &Response{Text: text}, nil
	}
	call, answer, err := ParseDecision(text)
	if err != nil {
		return nil, err
	}
	if call != nil {
		return &Response{Call: call}, nil
	}
	return &Response{Text: answer}, nil
}
