package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rendis/wayfind/pkg/schema"
)

// Checkpoint is the full recoverable snapshot of one session. Saving
// overwrites the previous snapshot for the same session; history lives in
// the append-only event log instead.
type Checkpoint struct {
	SessionID string                 `json:"session_id"`
	Node      schema.NodeID          `json:"node"`
	Status    schema.RunStatus       `json:"status"`
	State     *schema.ExecutionState `json:"state"`
	Sequence  int64                  `json:"sequence"`
	SavedAt   time.Time              `json:"saved_at"`
}

// Event is one append-only audit record for a session.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Node      schema.NodeID   `json:"node,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Status schema.RunStatus
	UserID string
	Limit  int
}

// Store defines the checkpoint persistence contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Checkpoints (one row per session, overwritten on save)
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
	Delete(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Checkpoint, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	Events(ctx context.Context, sessionID string, since int64) ([]*Event, error)

	// Leases enforce a single writer per session across processes.
	Acquire(ctx context.Context, sessionID, owner string, ttl time.Duration) error
	Release(ctx context.Context, sessionID, owner string) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
