package loader

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/pkg/firecrawl"
)

// crawlURL submits a crawl job, blocks until the job completes, and
// converts the accumulated page data into documents.
func (l *Loader) crawlURL(ctx context.Context, pageURL string) ([]model.Document, error) {
	zap.L().Info("loader: submitting crawl job", zap.String("url", pageURL))

	resp, err := l.client.StartCrawl(ctx, firecrawl.CrawlRequest{
		URL:          pageURL,
		CrawlOptions: l.crawlOpts,
	})
	if err != nil {
		zap.L().Error("loader: crawl submission failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return nil, eris.Wrapf(err, "loader: submit crawl %s", pageURL)
	}

	if resp.ID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "crawl submission did not return a job ID"
		}
		zap.L().Error("loader: crawl submission rejected",
			zap.String("url", pageURL),
			zap.String("message", msg),
		)
		return nil, eris.Errorf("loader: crawl %s failed: %s", pageURL, msg)
	}
	if resp.URL == "" {
		msg := resp.Message
		if msg == "" {
			msg = "crawl submission did not return a status URL"
		}
		zap.L().Error("loader: crawl submission rejected",
			zap.String("url", pageURL),
			zap.String("message", msg),
		)
		return nil, eris.Errorf("loader: crawl %s failed: %s", pageURL, msg)
	}

	statusURL := downgradeScheme(resp.URL, l.apiURL)

	zap.L().Info("loader: crawl job submitted",
		zap.String("job_id", resp.ID),
		zap.String("url", pageURL),
	)

	status, err := firecrawl.PollJob(ctx, l.client, firecrawl.Job{
		ID:        resp.ID,
		StatusURL: statusURL,
		SourceURL: pageURL,
	},
		firecrawl.WithPollInterval(l.pollInterval),
		firecrawl.WithPollTimeout(l.pollTimeout),
	)
	if err != nil {
		return nil, err
	}

	return l.collectPages(resp.ID, pageURL, status.Data), nil
}

// downgradeScheme rewrites an https status URL to http when the
// submission went over http. The service always returns https addresses
// regardless of the caller's scheme.
func downgradeScheme(statusURL, apiURL string) string {
	if strings.HasPrefix(apiURL, "http://") && strings.HasPrefix(statusURL, "https://") {
		return "http://" + strings.TrimPrefix(statusURL, "https://")
	}
	return statusURL
}

// collectPages converts a completed job's page data into documents,
// skipping pages without content. A completed job with no pages at all is
// a warning, not an error.
func (l *Loader) collectPages(jobID, originalURL string, pages []firecrawl.PageData) []model.Document {
	if len(pages) == 0 {
		zap.L().Warn("loader: completed crawl job returned no pages",
			zap.String("job_id", jobID),
			zap.String("url", originalURL),
		)
		return nil
	}

	docs := make([]model.Document, 0, len(pages))
	for _, page := range pages {
		content := page.Markdown
		if content == "" {
			content = page.Content
		}
		source := page.SourceURL
		if source == "" {
			source = originalURL
		}

		if content == "" {
			zap.L().Warn("loader: skipping crawled page without content",
				zap.String("job_id", jobID),
				zap.String("source", source),
			)
			continue
		}

		meta := map[string]any{
			"source":         source,
			"url":            source,
			"title":          stringField(page.Metadata, "title"),
			"description":    stringField(page.Metadata, "description"),
			"firecrawl_mode": string(model.ModeCrawl),
			"job_id":         jobID,
			"original_url":   originalURL,
		}
		flattenInto(meta, page.Metadata, "firecrawl_", false)

		docs = append(docs, model.Document{Content: content, Metadata: meta})
	}

	zap.L().Info("loader: collected crawl results",
		zap.String("job_id", jobID),
		zap.String("url", originalURL),
		zap.Int("documents", len(docs)),
	)
	return docs
}
