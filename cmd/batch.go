package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/internal/store"
)

var (
	batchFile  string
	batchLimit int
)

// batchSource is one entry in a batch sources file.
type batchSource struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode,omitempty"`
}

// batchManifest is the YAML document format accepted by `webloader batch`.
type batchManifest struct {
	Sources []batchSource `yaml:"sources"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Load documents for every source in a YAML manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("load"); err != nil {
			return err
		}

		sources, err := readManifest(batchFile)
		if err != nil {
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

		return processBatch(ctx, st, sources, batchLimit, cfg.Batch.MaxConcurrentSources)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "sources.yaml", "path to the YAML sources manifest")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of sources to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// readManifest parses a sources file and validates its entries.
func readManifest(path string) ([]batchSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", path)
	}

	var m batchManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "parse manifest %s", path)
	}

	for i := range m.Sources {
		m.Sources[i].URL = strings.TrimSpace(m.Sources[i].URL)
		if m.Sources[i].URL == "" {
			return nil, eris.Errorf("manifest %s: source %d has no url", path, i)
		}
		if m.Sources[i].Mode == "" {
			m.Sources[i].Mode = cfg.Loader.Mode
		}
		if !model.Mode(m.Sources[i].Mode).Valid() {
			return nil, eris.Errorf("manifest %s: source %d has invalid mode %q", path, i, m.Sources[i].Mode)
		}
	}
	return m.Sources, nil
}

// processBatch loads sources concurrently, persisting each run. A failed
// source is recorded and logged but does not abort the batch.
func processBatch(ctx context.Context, st store.Store, sources []batchSource, limit, concurrency int) error {
	if len(sources) == 0 {
		zap.L().Info("no sources in manifest")
		return nil
	}

	if limit > 0 && len(sources) > limit {
		sources = sources[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("sources", len(sources)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, src := range sources {
		g.Go(func() error {
			log := zap.L().With(zap.String("url", src.URL))

			docs, err := loadSource(gctx, st, src)
			if err != nil {
				failed.Add(1)
				log.Error("source load failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("source loaded", zap.Int("documents", docs))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// loadSource runs the loader for one source and persists the outcome.
func loadSource(ctx context.Context, st store.Store, src batchSource) (int, error) {
	mode := model.Mode(src.Mode)

	run, err := st.CreateRun(ctx, src.URL, mode)
	if err != nil {
		return 0, err
	}

	l, err := newLoader([]string{src.URL}, mode)
	if err != nil {
		if fErr := st.FailRun(ctx, run.ID, err.Error()); fErr != nil {
			zap.L().Warn("failed to record run failure", zap.Error(fErr))
		}
		return 0, err
	}

	docs, err := l.Load(ctx)
	if err != nil {
		if fErr := st.FailRun(ctx, run.ID, err.Error()); fErr != nil {
			zap.L().Warn("failed to record run failure", zap.Error(fErr))
		}
		return 0, err
	}

	if err := st.SaveDocuments(ctx, run.ID, docs); err != nil {
		return 0, err
	}
	if err := st.CompleteRun(ctx, run.ID, len(docs)); err != nil {
		return 0, err
	}
	return len(docs), nil
}
