package loader

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/webloader/internal/model"
	"github.com/sells-group/webloader/pkg/firecrawl"
)

// scrapeURL fetches a single page and converts it into at most one
// document. Empty or whitespace-only content yields zero documents
// without error.
func (l *Loader) scrapeURL(ctx context.Context, pageURL string) ([]model.Document, error) {
	zap.L().Debug("loader: scraping url", zap.String("url", pageURL))

	resp, err := l.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:           pageURL,
		ScrapeOptions: l.scrapeOpts,
	})
	if err != nil {
		zap.L().Error("loader: scrape request failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return nil, eris.Wrapf(err, "loader: scrape %s", pageURL)
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error during scrape"
		}
		zap.L().Error("loader: scrape rejected by service",
			zap.String("url", pageURL),
			zap.String("message", msg),
		)
		return nil, eris.Errorf("loader: scrape %s failed: %s", pageURL, msg)
	}

	content := resp.Data.Markdown
	if content == "" {
		content = resp.Data.Content
	}
	if strings.TrimSpace(content) == "" {
		zap.L().Warn("loader: no content extracted", zap.String("url", pageURL))
		return nil, nil
	}

	meta := map[string]any{
		"source":         pageURL,
		"url":            pageURL,
		"firecrawl_mode": string(model.ModeScrape),
		"content_length": len(content),
	}
	if md := resp.Data.Metadata; md != nil {
		meta["title"] = stringField(md, "title")
		meta["description"] = stringField(md, "description")
		flattenInto(meta, md, "firecrawl_", true)
	}

	return []model.Document{{Content: content, Metadata: meta}}, nil
}
