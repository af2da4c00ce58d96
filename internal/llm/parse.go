package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/wayfind/pkg/schema"
)

// ExtractJSON strips markdown fences and surrounding prose from model output,
// returning the first top-level JSON object or array.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON payload in completion")
	}
	open := text[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON payload in completion")
}

// UnmarshalInto extracts and decodes a JSON payload into dst.
func UnmarshalInto(text string, dst any) error {
	payload, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return fmt.Errorf("decode completion JSON: %w", err)
	}
	return nil
}

// decision is the constrained output shape for capability-selection turns.
type decision struct {
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args"`
	Answer     string         `json:"answer"`
}

// ParseDecision reads a capability-selection completion. Exactly one of the
// returned call and answer is populated.
func ParseDecision(text string) (*schema.CapabilityCall, string, error) {
	var d decision
	if err := UnmarshalInto(text, &d); err != nil {
		// Prose fallback: treat non-JSON output as a direct answer.
		return nil, strings.TrimSpace(text), nil
	}
	if d.Capability != "" {
		args := d.Args
		if args == nil {
			args = map[string]any{}
		}
		return &schema.CapabilityCall{Capability: d.Capability, Args: args}, "", nil
	}
	if d.Answer != "" {
		return nil, d.Answer, nil
	}
	return nil, "", fmt.Errorf("completion carries neither a capability call nor an answer")
}
