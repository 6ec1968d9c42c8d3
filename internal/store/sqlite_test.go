package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/webloader/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "https://example.com", model.ModeScrape)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.URL)
	assert.Equal(t, model.ModeScrape, got.Mode)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Empty(t, got.Error)
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "https://example.com", model.ModeCrawl)
	require.NoError(t, err)

	require.NoError(t, st.CompleteRun(ctx, run.ID, 12))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, 12, got.Documents)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "https://example.com", model.ModeScrape)
	require.NoError(t, err)

	require.NoError(t, st.FailRun(ctx, run.ID, "scrape refused"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "scrape refused", got.Error)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "missing-run", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx, "https://a.com", model.ModeScrape)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "https://b.com", model.ModeCrawl)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, r1.ID, 1))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, r1.ID, completed[0].ID)

	byURL, err := st.ListRuns(ctx, RunFilter{URL: "https://b.com"})
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Equal(t, "https://b.com", byURL[0].URL)
}

func TestSQLite_ListRuns_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for range 5 {
		_, err := st.CreateRun(ctx, "https://example.com", model.ModeScrape)
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSQLite_SaveAndListDocuments(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "https://example.com", model.ModeScrape)
	require.NoError(t, err)

	docs := []model.Document{
		{Content: "# One", Metadata: map[string]any{"source": "https://example.com/1", "title": "One"}},
		{Content: "# Two", Metadata: map[string]any{"source": "https://example.com/2", "title": "Two"}},
	}
	require.NoError(t, st.SaveDocuments(ctx, run.ID, docs))

	stored, err := st.ListDocuments(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.Equal(t, run.ID, stored[0].RunID)
	assert.Equal(t, "https://example.com/1", stored[0].Source)
	assert.Equal(t, "# One", stored[0].Content)
	assert.Equal(t, "One", stored[0].Metadata["title"])
}

func TestSQLite_SaveDocuments_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.SaveDocuments(context.Background(), "any-run", nil))
}

func TestSQLite_ListDocuments_NoRows(t *testing.T) {
	st := newTestSQLiteStore(t)

	docs, err := st.ListDocuments(context.Background(), "missing-run")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
