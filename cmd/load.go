package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/webloader/internal/loader"
	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/internal/store"
	"github.com/sells-group/webloader/pkg/firecrawl"
)

var (
	loadMode   string
	loadFormat string
	loadSave   bool
)

var loadCmd = &cobra.Command{
	Use:   "load <url> [url...]",
	Short: "Load documents from one or more URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := model.Mode(loadMode)
		if mode == "" {
			mode = model.Mode(cfg.Loader.Mode)
		}
		if err := cfg.Validate("load"); err != nil {
			return err
		}

		l, err := newLoader(args, mode)
		if err != nil {
			return err
		}

		var st store.Store
		var run *model.LoadRun
		if loadSave {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			run, err = st.CreateRun(ctx, args[0], mode)
			if err != nil {
				return err
			}
		}

		docs, err := l.Load(ctx)
		if err != nil {
			if run != nil {
				if fErr := st.FailRun(ctx, run.ID, err.Error()); fErr != nil {
					zap.L().Warn("failed to record run failure", zap.Error(fErr))
				}
			}
			return err
		}

		if run != nil {
			if err := st.SaveDocuments(ctx, run.ID, docs); err != nil {
				return err
			}
			if err := st.CompleteRun(ctx, run.ID, len(docs)); err != nil {
				return err
			}
			zap.L().Info("run saved", zap.String("run_id", run.ID), zap.Int("documents", len(docs)))
		}

		return writeDocuments(os.Stdout, docs, loadFormat)
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadMode, "mode", "", "retrieval mode: scrape or crawl (default from config)")
	loadCmd.Flags().StringVar(&loadFormat, "format", "text", "output format: text, json, or yaml")
	loadCmd.Flags().BoolVar(&loadSave, "save", false, "persist the run and its documents to the store")
	rootCmd.AddCommand(loadCmd)
}

// newLoader builds a loader for the given URLs from the active config.
func newLoader(urls []string, mode model.Mode) (*loader.Loader, error) {
	scrapeOpts := loaderScrapeOptions()
	crawlOpts := loaderCrawlOptions()

	return loader.New(cfg.Firecrawl.Key, urls,
		loader.WithMode(mode),
		loader.WithBaseURL(cfg.Firecrawl.BaseURL),
		loader.WithScrapeOptions(scrapeOpts),
		loader.WithCrawlOptions(crawlOpts),
		loader.WithPollInterval(time.Duration(cfg.Loader.PollIntervalSecs)*time.Second),
		loader.WithPollTimeout(time.Duration(cfg.Loader.PollTimeoutSecs)*time.Second),
	)
}

// writeDocuments renders documents in the requested format.
func writeDocuments(out io.Writer, docs []model.Document, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case "yaml":
		return yaml.NewEncoder(out).Encode(docs)
	case "text":
		for i, d := range docs {
			if i > 0 {
				fmt.Fprintln(out, "---")
			}
			fmt.Fprintf(out, "source: %s\n\n%s\n", d.Source(), d.Content)
		}
		return nil
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}

// loaderScrapeOptions maps config to the scrape option bundle.
func loaderScrapeOptions() firecrawl.ScrapeOptions {
	opts := firecrawl.DefaultScrapeOptions()
	opts.WaitFor = cfg.Loader.WaitForMs
	if len(cfg.Loader.ExcludeTags) > 0 {
		opts.ExcludeTags = cfg.Loader.ExcludeTags
	}
	return opts
}

// loaderCrawlOptions maps config to the crawl option bundle.
func loaderCrawlOptions() firecrawl.CrawlOptions {
	opts := firecrawl.DefaultCrawlOptions()
	if cfg.Loader.MaxPages > 0 {
		opts.Limit = cfg.Loader.MaxPages
	}
	if cfg.Loader.MaxDepth > 0 {
		opts.MaxDepth = cfg.Loader.MaxDepth
	}
	if cfg.Loader.DelaySecs > 0 {
		opts.Delay = cfg.Loader.DelaySecs
	}
	if len(cfg.Loader.ExcludeTags) > 0 {
		opts.ScrapeOptions.ExcludeTags = cfg.Loader.ExcludeTags
	}
	return opts
}
