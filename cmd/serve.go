package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for load requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, st),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API. Load requests run asynchronously; the
// response carries the run id for later inspection.
func newRouter(ctx context.Context, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/load", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL  string `json:"url"`
			Mode string `json:"mode,omitempty"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}

		mode := model.Mode(body.Mode)
		if body.Mode == "" {
			mode = model.Mode(cfg.Loader.Mode)
		}
		if !mode.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be scrape or crawl"})
			return
		}

		run, err := st.CreateRun(req.Context(), body.URL, mode)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create run failed"})
			return
		}

		// Run the load asynchronously against the server's lifetime
		// context, not the request's.
		go runLoad(ctx, st, run, mode)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": run.ID,
			"url":    body.URL,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			URL:    req.URL.Query().Get("url"),
		}
		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/runs/{id}/documents", func(w http.ResponseWriter, req *http.Request) {
		docs, err := st.ListDocuments(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list documents failed"})
			return
		}
		writeJSON(w, http.StatusOK, docs)
	})

	return r
}

// runLoad executes one accepted load request and records its outcome.
func runLoad(ctx context.Context, st store.Store, run *model.LoadRun, mode model.Mode) {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("url", run.URL))

	l, err := newLoader([]string{run.URL}, mode)
	if err != nil {
		recordFailure(ctx, st, run.ID, err, log)
		return
	}

	docs, err := l.Load(ctx)
	if err != nil {
		recordFailure(ctx, st, run.ID, err, log)
		return
	}

	if err := st.SaveDocuments(ctx, run.ID, docs); err != nil {
		recordFailure(ctx, st, run.ID, err, log)
		return
	}
	if err := st.CompleteRun(ctx, run.ID, len(docs)); err != nil {
		log.Error("failed to complete run", zap.Error(err))
		return
	}
	log.Info("load complete", zap.Int("documents", len(docs)))
}

func recordFailure(ctx context.Context, st store.Store, runID string, cause error, log *zap.Logger) {
	log.Error("load failed", zap.Error(cause))
	if err := st.FailRun(ctx, runID, cause.Error()); err != nil {
		log.Warn("failed to record run failure", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
