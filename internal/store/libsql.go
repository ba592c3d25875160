package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/pathway.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Sessions ---

// SaveSession inserts or replaces a session row. CreatedAt is kept from the
// first save.
func (s *LibSQLStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "session record requires an id")
	}
	nodes, err := json.Marshal(nodesOrEmpty(rec.Nodes))
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	history := rec.History
	if history == nil {
		history = [][]schema.Node{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	keys := rec.CacheKeys
	if keys == nil {
		keys = []string{}
	}
	keyJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshal cache keys: %w", err)
	}

	if rec.ContentHash == "" {
		rec.ContentHash = schema.NewGraph(rec.Nodes).ContentHash()
	}
	if rec.State == "" {
		rec.State = "draft"
	}
	rec.CreatedAt = timeOrNow(rec.CreatedAt)
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, state, nodes, history, cache_keys, content_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, state=excluded.state, nodes=excluded.nodes,
		   history=excluded.history, cache_keys=excluded.cache_keys, content_hash=excluded.content_hash,
		   updated_at=excluded.updated_at`,
		rec.ID, nullStr(rec.Title), rec.State, string(nodes), string(hist), string(keyJSON),
		rec.ContentHash, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// GetSession loads a session row. A missing id is NOT_FOUND.
func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, state, nodes, history, cache_keys, content_hash, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	return rec, err
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error) {
	var where []string
	var args []any

	if filter.UpdatedBefore != nil {
		where = append(where, "updated_at < ?")
		args = append(args, *filter.UpdatedBefore)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}

	query := `SELECT id, title, state, nodes, history, cache_keys, content_hash, created_at, updated_at FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its events.
func (s *LibSQLStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "session", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// PruneSessions deletes sessions not updated since updatedBefore, along with
// their events, and returns how many sessions were removed.
func (s *LibSQLStore) PruneSessions(ctx context.Context, updatedBefore time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, updatedBefore,
	); err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, updatedBefore)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var (
		title                     sql.NullString
		nodes, history, cacheKeys string
	)
	if err := row.Scan(&rec.ID, &title, &rec.State, &nodes, &history, &cacheKeys,
		&rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Title = title.String
	if err := json.Unmarshal([]byte(nodes), &rec.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if err := json.Unmarshal([]byte(cacheKeys), &rec.CacheKeys); err != nil {
		return nil, fmt.Errorf("unmarshal cache keys: %w", err)
	}
	return rec, nil
}

// --- Events ---

// AppendEvent appends an event with the next per-session sequence number.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *schema.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, operation, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.Type, nullStr(string(event.Operation)), nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a session with sequence > since, in order.
func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*schema.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, operation, payload, timestamp, sequence
		 FROM events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*schema.Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, filter.Operation)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, session_id, event_type, operation, payload, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*schema.Event, error) {
	var events []*schema.Event
	for rows.Next() {
		e := &schema.Event{}
		var op, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &op, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Operation = schema.Operation(op.String)
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Evaluations ---

// SaveEvaluations replaces the stored ratings of a session.
func (s *LibSQLStore) SaveEvaluations(ctx context.Context, sessionID string, evals []heuristics.Evaluation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM evaluations WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, ev := range evals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO evaluations (session_id, heuristic_id, severity, observation, updated_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, ev.HeuristicID, int(ev.Severity), nullStr(ev.Observation), now,
		); err != nil {
			return fmt.Errorf("insert evaluation %s: %w", ev.HeuristicID, err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListEvaluations(ctx context.Context, sessionID string) ([]heuristics.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT heuristic_id, severity, observation FROM evaluations
		 WHERE session_id = ? ORDER BY severity DESC, heuristic_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []heuristics.Evaluation
	for rows.Next() {
		var ev heuristics.Evaluation
		var sev int
		var obs sql.NullString
		if err := rows.Scan(&ev.HeuristicID, &sev, &obs); err != nil {
			return nil, err
		}
		ev.Severity = heuristics.Severity(sev)
		ev.Observation = obs.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.PathwayError {
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

func nodesOrEmpty(nodes []schema.Node) []schema.Node {
	if nodes == nil {
		return []schema.Node{}
	}
	return nodes
}
