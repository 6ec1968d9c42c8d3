package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/webloader/internal/config"
	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/internal/store"
)

// setTestConfig installs a config pointing at the given Firecrawl base URL.
func setTestConfig(t *testing.T, firecrawlURL string) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{}
	cfg.Firecrawl.Key = "test-api-key"
	cfg.Firecrawl.BaseURL = firecrawlURL
	cfg.Loader.Mode = "scrape"
	cfg.Loader.WaitForMs = 500
	cfg.Loader.PollIntervalSecs = 1
	cfg.Loader.PollTimeoutSecs = 5
	t.Cleanup(func() { cfg = prev })
}

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func fakeFirecrawl(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"markdown": "# Hi", "metadata": {"title": "Ex"}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestServe_Health(t *testing.T) {
	setTestConfig(t, "http://unused")
	st := newServeStore(t)

	srv := httptest.NewServer(newRouter(context.Background(), st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServe_Load_RequiresURL(t *testing.T) {
	setTestConfig(t, "http://unused")
	st := newServeStore(t)

	srv := httptest.NewServer(newRouter(context.Background(), st))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/load", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_Load_RejectsUnknownMode(t *testing.T) {
	setTestConfig(t, "http://unused")
	st := newServeStore(t)

	srv := httptest.NewServer(newRouter(context.Background(), st))
	defer srv.Close()

	body := `{"url": "https://example.com", "mode": "extract"}`
	resp, err := http.Post(srv.URL+"/load", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_Load_AcceptedAndCompletes(t *testing.T) {
	fc := fakeFirecrawl(t)
	setTestConfig(t, fc.URL)
	st := newServeStore(t)

	srv := httptest.NewServer(newRouter(context.Background(), st))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/load", "application/json",
		strings.NewReader(`{"url": "https://example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	runID := accepted["run_id"]
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		run, err := st.GetRun(context.Background(), runID)
		return err == nil && run.Status == model.RunStatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	docs, err := st.ListDocuments(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "# Hi", docs[0].Content)
}

func TestServe_GetRun_NotFound(t *testing.T) {
	setTestConfig(t, "http://unused")
	st := newServeStore(t)

	srv := httptest.NewServer(newRouter(context.Background(), st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_ListRuns(t *testing.T) {
	setTestConfig(t, "http://unused")
	st := newServeStore(t)

	_, err := st.CreateRun(context.Background(), "https://example.com", model.ModeScrape)
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(context.Background(), st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.LoadRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	assert.Len(t, runs, 1)
}
