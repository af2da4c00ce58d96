package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rendis/wayfind/pkg/schema"
)

// MemoryStore is an in-process Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Checkpoint
	events   map[string][]*Event
	leases   map[string]lease
	nextID   int64
}

type lease struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Checkpoint),
		events:   make(map[string][]*Event),
		leases:   make(map[string]lease),
	}
}

func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	if cp == nil || cp.SessionID == "" {
		return schema.NewError(schema.ErrCodeCheckpoint, "checkpoint requires a session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := *cp
	if saved.State != nil {
		saved.State = cp.State.Clone()
	}
	if saved.SavedAt.IsZero() {
		saved.SavedAt = time.Now().UTC()
	}
	m.sessions[cp.SessionID] = &saved
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.sessions[sessionID]
	if !ok {
		return nil, storeNotFound("session", sessionID)
	}
	out := *cp
	if out.State != nil {
		out.State = cp.State.Clone()
	}
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return storeNotFound("session", sessionID)
	}
	delete(m.sessions, sessionID)
	delete(m.events, sessionID)
	delete(m.leases, sessionID)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, filter SessionFilter) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Checkpoint
	for _, cp := range m.sessions {
		if filter.Status != "" && cp.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && (cp.State == nil || cp.State.UserID != filter.UserID) {
			continue
		}
		c := *cp
		if c.State != nil {
			c.State = cp.State.Clone()
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := *event
	e.ID = m.nextID
	e.Sequence = int64(len(m.events[event.SessionID])) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.events[event.SessionID] = append(m.events[event.SessionID], &e)
	event.Sequence = e.Sequence
	return nil
}

func (m *MemoryStore) Events(_ context.Context, sessionID string, since int64) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, e := range m.events[sessionID] {
		if e.Sequence > since {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryStore) Acquire(_ context.Context, sessionID, owner string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if l, ok := m.leases[sessionID]; ok && l.owner != owner && l.expiresAt.After(now) {
		return schema.NewErrorf(schema.ErrCodeConflict, "session %q is held by another writer", sessionID)
	}
	m.leases[sessionID] = lease{owner: owner, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Release(_ context.Context, sessionID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[sessionID]; ok && l.owner == owner {
		delete(m.leases, sessionID)
	}
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
