// Package loader retrieves web page content via the Firecrawl API and
// converts results into documents for downstream ingestion.
//
// A Loader is constructed with one or more URLs and a fixed mode: scrape
// (single-page fetch) or crawl (asynchronous site crawl, polled to
// completion). URLs are resolved strictly in the order supplied; each
// URL's documents are fully produced before the next URL is touched.
package loader

import (
	"context"
	"iter"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/pkg/firecrawl"
)

// DefaultBaseURL is the public Firecrawl endpoint.
const DefaultBaseURL = "https://api.firecrawl.dev"

// Loader produces documents from a fixed list of URLs. Option bundles are
// immutable after construction; there is no per-call override.
type Loader struct {
	client       firecrawl.Client
	urls         []string
	mode         model.Mode
	apiURL       string
	scrapeOpts   firecrawl.ScrapeOptions
	crawlOpts    firecrawl.CrawlOptions
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Option configures a Loader.
type Option func(*Loader)

// WithMode sets the retrieval mode. Default is scrape.
func WithMode(mode model.Mode) Option {
	return func(l *Loader) {
		l.mode = mode
	}
}

// WithBaseURL overrides the service base URL.
func WithBaseURL(url string) Option {
	return func(l *Loader) {
		l.apiURL = url
	}
}

// WithClient injects a pre-built API client. The base URL should still be
// set when it differs from the default, since scheme correction for crawl
// status URLs is derived from it.
func WithClient(client firecrawl.Client) Option {
	return func(l *Loader) {
		l.client = client
	}
}

// WithScrapeOptions overrides the scrape option bundle.
func WithScrapeOptions(opts firecrawl.ScrapeOptions) Option {
	return func(l *Loader) {
		l.scrapeOpts = opts
	}
}

// WithCrawlOptions overrides the crawl option bundle.
func WithCrawlOptions(opts firecrawl.CrawlOptions) Option {
	return func(l *Loader) {
		l.crawlOpts = opts
	}
}

// WithPollInterval overrides the crawl poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithPollTimeout overrides the crawl poll deadline.
func WithPollTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.pollTimeout = d
		}
	}
}

// New creates a Loader. At least one URL and a non-empty API key are
// required; both are validated before any network call.
func New(apiKey string, urls []string, opts ...Option) (*Loader, error) {
	if len(urls) == 0 {
		return nil, eris.New("loader: at least one URL must be provided")
	}
	if apiKey == "" {
		return nil, eris.New("loader: Firecrawl API key must be provided")
	}

	l := &Loader{
		urls:         urls,
		mode:         model.ModeScrape,
		apiURL:       DefaultBaseURL,
		scrapeOpts:   firecrawl.DefaultScrapeOptions(),
		crawlOpts:    firecrawl.DefaultCrawlOptions(),
		pollInterval: firecrawl.DefaultPollInterval,
		pollTimeout:  firecrawl.DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.client == nil {
		l.client = firecrawl.NewClient(apiKey, firecrawl.WithBaseURL(l.apiURL))
	}

	return l, nil
}

// Result pairs a streamed document with the error that ended the sequence,
// if any. At most one Result carries a non-nil Err, and it is the last.
type Result struct {
	Document model.Document
	Err      error
}

// All returns a blocking lazy iterator over the loader's documents. URLs
// are resolved in input order; an error stops the sequence after being
// yielded once.
func (l *Loader) All(ctx context.Context) iter.Seq2[model.Document, error] {
	return func(yield func(model.Document, error) bool) {
		for _, u := range l.urls {
			docs, err := l.loadOne(ctx, u)
			if err != nil {
				yield(model.Document{}, err)
				return
			}
			for _, d := range docs {
				if !yield(d, nil) {
					return
				}
			}
		}
	}
}

// Stream performs the same work as All off the caller's goroutine,
// yielding results on a channel in identical order. The channel is closed
// when the sequence ends; a terminal error is delivered as the final
// Result.
func (l *Loader) Stream(ctx context.Context) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		for doc, err := range l.All(ctx) {
			select {
			case out <- Result{Document: doc, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// Load resolves every URL and collects all documents. It is the eager
// form of All.
func (l *Loader) Load(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	for doc, err := range l.All(ctx) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// loadOne resolves a single URL according to the loader's mode. An
// unrecognized mode is logged and skipped rather than failing the whole
// sequence; that leniency is intentional.
func (l *Loader) loadOne(ctx context.Context, pageURL string) ([]model.Document, error) {
	switch l.mode {
	case model.ModeScrape:
		return l.scrapeURL(ctx, pageURL)
	case model.ModeCrawl:
		return l.crawlURL(ctx, pageURL)
	default:
		zap.L().Error("loader: unknown mode, skipping url",
			zap.String("mode", string(l.mode)),
			zap.String("url", pageURL),
		)
		return nil, nil
	}
}
