package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/wayfind/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

func (s *LibSQLStore) Close() error { return s.db.Close() }

func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Checkpoints ---

func (s *LibSQLStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.SessionID == "" {
		return schema.NewError(schema.ErrCodeCheckpoint, "checkpoint requires a session id")
	}
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return schema.NewError(schema.ErrCodeCheckpoint, "marshal session state").WithCause(err)
	}
	userID := ""
	if cp.State != nil {
		userID = cp.State.UserID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, node, status, state, sequence, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   user_id=excluded.user_id, node=excluded.node, status=excluded.status,
		   state=excluded.state, sequence=excluded.sequence, saved_at=excluded.saved_at`,
		cp.SessionID, userID, string(cp.Node), string(cp.Status),
		string(stateJSON), cp.Sequence, timeOrNow(cp.SavedAt),
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "save checkpoint").WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	cp := &Checkpoint{}
	var node, status, stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, node, status, state, sequence, saved_at
		 FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&cp.SessionID, &node, &status, &stateJSON, &cp.Sequence, &cp.SavedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", sessionID)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load checkpoint").WithCause(err)
	}
	cp.Node = schema.NodeID(node)
	cp.Status = schema.RunStatus(status)
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, schema.NewError(schema.ErrCodeCheckpoint, "unmarshal session state").WithCause(err)
	}
	return cp, nil
}

func (s *LibSQLStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete checkpoint").WithCause(err)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Checkpoint, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := `SELECT session_id, node, status, state, sequence, saved_at FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY saved_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list sessions").WithCause(err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp := &Checkpoint{}
		var node, status, stateJSON string
		if err := rows.Scan(&cp.SessionID, &node, &status, &stateJSON, &cp.Sequence, &cp.SavedAt); err != nil {
			return nil, err
		}
		cp.Node = schema.NodeID(node)
		cp.Status = schema.RunStatus(status)
		if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
			return nil, schema.NewError(schema.ErrCodeCheckpoint, "unmarshal session state").WithCause(err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// --- Event log ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM session_events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_events (session_id, node, event_type, payload, sequence, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, nullStr(string(event.Node)), event.Type,
		nullRaw(event.Payload), seq, timeOrNow(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) Events(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, node, event_type, payload, sequence, timestamp
		 FROM session_events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var node, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &node, &e.Type, &payload, &e.Sequence, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Node = schema.NodeID(node.String)
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Leases ---

func (s *LibSQLStore) Acquire(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO session_leases (session_id, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET owner=excluded.owner, expires_at=excluded.expires_at
		 WHERE session_leases.owner = excluded.owner OR session_leases.expires_at < ?`,
		sessionID, owner, now.Add(ttl), now,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "acquire lease").WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeConflict, "session %q is held by another writer", sessionID)
	}
	return nil
}

func (s *LibSQLStore) Release(ctx context.Context, sessionID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_leases WHERE session_id = ? AND owner = ?`, sessionID, owner)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "release lease").WithCause(err)
	}
	return nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.WayfindError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
