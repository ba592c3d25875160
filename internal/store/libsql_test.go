package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/internal/pathwaytest"
	"github.com/rendis/pathway/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedSession(t *testing.T, s *LibSQLStore) *SessionRecord {
	t.Helper()
	rec := &SessionRecord{
		ID:      uuid.New().String(),
		Title:   "Adult vomiting",
		Nodes:   pathwaytest.TwoBranch().Nodes(),
		History: [][]schema.Node{pathwaytest.LinearNodes(3)},
	}
	require.NoError(t, s.SaveSession(context.Background(), rec))
	return rec
}

// --- Session Tests ---

func TestSaveAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedSession(t, s)

	got, err := s.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Adult vomiting", got.Title)
	assert.Equal(t, "draft", got.State)
	assert.Empty(t, cmp.Diff(rec.Nodes, got.Nodes))
	assert.Empty(t, cmp.Diff(rec.History, got.History))
	assert.Equal(t, pathwaytest.TwoBranch().ContentHash(), got.ContentHash)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSaveSession_UpdateKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedSession(t, s)

	first, err := s.GetSession(ctx, rec.ID)
	require.NoError(t, err)

	rec.Nodes = pathwaytest.LinearNodes(4)
	rec.ContentHash = ""
	rec.State = "accepted"
	rec.CreatedAt = time.Time{}
	require.NoError(t, s.SaveSession(ctx, rec))

	got, err := s.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 4)
	assert.Equal(t, "accepted", got.State)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSaveSession_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveSession(context.Background(), &SessionRecord{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedSession(t, s)
	}

	all, err := s.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListSessions(ctx, SessionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.ListSessions(ctx, SessionFilter{State: "rejected"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedSession(t, s)
	require.NoError(t, s.AppendEvent(ctx, &schema.Event{SessionID: rec.ID, Type: schema.EventSessionCreated}))

	require.NoError(t, s.DeleteSession(ctx, rec.ID))
	_, err := s.GetSession(ctx, rec.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	events, err := s.GetEvents(ctx, rec.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = s.DeleteSession(ctx, rec.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestPruneSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := seedSession(t, s)
	require.NoError(t, s.AppendEvent(ctx, &schema.Event{SessionID: old.ID, Type: schema.EventSessionCreated}))

	cutoff := time.Now().UTC().Add(time.Second)
	n, err := s.PruneSessions(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fresh := seedSession(t, s)
	n, err = s.PruneSessions(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.GetSession(ctx, fresh.ID)
	assert.NoError(t, err)
	events, err := s.GetEvents(ctx, old.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// --- Event Tests ---

func TestAppendAndGetEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedSession(t, s)

	for _, typ := range []string{schema.EventSessionCreated, schema.EventMutationAccepted, schema.EventUndoApplied} {
		e := &schema.Event{SessionID: rec.ID, Type: typ, Operation: schema.OpApply}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.NotZero(t, e.ID)
	}

	events, err := s.GetEvents(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, schema.EventSessionCreated, events[0].Type)
	assert.Equal(t, schema.OpApply, events[1].Operation)

	since, err := s.GetEvents(ctx, rec.ID, 2)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, schema.EventUndoApplied, since[0].Type)
}

func TestGetEventsByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := seedSession(t, s), seedSession(t, s)

	require.NoError(t, s.AppendEvent(ctx, &schema.Event{SessionID: a.ID, Type: schema.EventMutationRejected, Operation: schema.OpReorganize}))
	require.NoError(t, s.AppendEvent(ctx, &schema.Event{SessionID: b.ID, Type: schema.EventMutationRejected, Operation: schema.OpApply}))
	require.NoError(t, s.AppendEvent(ctx, &schema.Event{SessionID: b.ID, Type: schema.EventMutationAccepted, Operation: schema.OpApply}))

	all, err := s.GetEventsByType(ctx, schema.EventMutationRejected, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyB, err := s.GetEventsByType(ctx, schema.EventMutationRejected, EventFilter{SessionID: b.ID})
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, schema.OpApply, onlyB[0].Operation)

	reorg, err := s.GetEventsByType(ctx, schema.EventMutationRejected, EventFilter{Operation: string(schema.OpReorganize)})
	require.NoError(t, err)
	require.Len(t, reorg, 1)
	assert.Equal(t, a.ID, reorg[0].SessionID)
}

// --- Evaluation Tests ---

func TestSaveAndListEvaluations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := seedSession(t, s)

	evals := []heuristics.Evaluation{
		{HeuristicID: "H4", Severity: heuristics.SeverityMinor},
		{HeuristicID: "H9", Severity: heuristics.SeverityMajor, Observation: "No deterioration branch"},
	}
	require.NoError(t, s.SaveEvaluations(ctx, rec.ID, evals))

	got, err := s.ListEvaluations(ctx, rec.ID)
	require.NoError(t, err)
	want := []heuristics.Evaluation{evals[1], evals[0]}
	assert.Empty(t, cmp.Diff(want, got))

	require.NoError(t, s.SaveEvaluations(ctx, rec.ID, evals[:1]))
	got, err = s.ListEvaluations(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	var version, rows int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT MAX(version), COUNT(*) FROM schema_version`).Scan(&version, &rows))
	assert.Equal(t, 1, version)
	assert.Equal(t, 1, rows)
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].version)
	assert.Equal(t, "initial_schema", ms[0].name)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].version, ms[i].version)
	}
}

func TestStatements(t *testing.T) {
	script := `-- header only;
CREATE TABLE a (id INTEGER);
-- note
CREATE INDEX idx_a ON a(id);
`
	assert.Equal(t, []string{
		"CREATE TABLE a (id INTEGER)",
		"-- note\nCREATE INDEX idx_a ON a(id)",
	}, statements(script))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
