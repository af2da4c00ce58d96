package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/wayfind/pkg/schema"
)

// Freshness classification bounds in days.
const (
	freshWithinDays = 30
	agingWithinDays = 90
)

// Clock reports the current time and classifies how stale a tool's recorded
// information is.
type Clock struct {
	now func() time.Time
}

// NewClock creates the clock capability. A nil now func uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Name() string { return "clock" }

func (c *Clock) Description() string {
	return "Get the current date/time and check how fresh a tool's recorded information is"
}

func (c *Clock) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "name": { "type": "string" },
    "updated_date": { "type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$" }
  },
  "additionalProperties": false
}`)
}

func (c *Clock) Execute(_ context.Context, args map[string]any) (*Result, error) {
	now := c.now().UTC()
	out := map[string]any{
		"now": now.Format("2006-01-02 15:04:05"),
	}

	if updated, _ := args["updated_date"].(string); updated != "" {
		parsed, err := time.Parse("2006-01-02", updated)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeCapability, "invalid updated_date %q: expected YYYY-MM-DD", updated)
		}
		daysOld := int(now.Sub(parsed).Hours() / 24)
		out["days_old"] = daysOld
		out["freshness"] = classifyFreshness(daysOld)
		if name, _ := args["name"].(string); name != "" {
			out["name"] = name
			out["note"] = freshnessNote(name, daysOld)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "marshal clock result").WithCause(err)
	}
	return &Result{Data: data}, nil
}

func classifyFreshness(daysOld int) string {
	switch {
	case daysOld <= freshWithinDays:
		return "fresh"
	case daysOld <= agingWithinDays:
		return "aging"
	default:
		return "stale"
	}
}

func freshnessNote(name string, daysOld int) string {
	switch classifyFreshness(daysOld) {
	case "fresh":
		return fmt.Sprintf("%s info is current (updated %d days ago)", name, daysOld)
	case "aging":
		return fmt.Sprintf("%s info is somewhat dated (updated %d days ago); verify on the official site", name, daysOld)
	default:
		return fmt.Sprintf("%s info is stale (updated %d days ago); confirm before relying on it", name, daysOld)
	}
}
