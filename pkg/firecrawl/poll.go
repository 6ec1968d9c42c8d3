package firecrawl

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the fixed delay between status checks.
	DefaultPollInterval = 5 * time.Second
	// DefaultPollTimeout is the overall deadline, measured from the first
	// poll attempt.
	DefaultPollTimeout = 600 * time.Second
)

// Job identifies a submitted crawl for polling.
type Job struct {
	ID        string
	StatusURL string
	SourceURL string // the originally requested locator, for log context
}

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		interval: DefaultPollInterval,
		timeout:  DefaultPollTimeout,
	}
}

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithPollTimeout overrides the overall deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// PollJob polls the job's status URL at a fixed interval until the job
// reaches a terminal status or the deadline passes. There is no retry
// count: any transport error is fatal, and polling is otherwise unbounded
// within the deadline.
func PollJob(ctx context.Context, client Client, job Job, opts ...PollOption) (*CrawlStatusResponse, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("url", job.SourceURL),
	)
	log.Info("polling crawl job", zap.String("status_url", job.StatusURL))

	start := time.Now()
	for {
		if time.Since(start) > cfg.timeout {
			return nil, eris.Errorf("firecrawl: timeout waiting for job %s (url: %s) to complete after %s",
				job.ID, job.SourceURL, cfg.timeout)
		}

		status, err := client.CrawlStatus(ctx, job.StatusURL)
		if err != nil {
			log.Error("crawl status check failed", zap.Error(err))
			return nil, eris.Wrapf(err, "firecrawl: poll job %s", job.ID)
		}

		switch status.Status {
		case StatusCompleted:
			log.Info("crawl job completed", zap.Int("pages", len(status.Data)))
			return status, nil
		case StatusFailed, StatusError:
			msg := status.Message
			if msg == "" {
				msg = "unknown crawl error"
			}
			log.Error("crawl job failed", zap.String("message", msg))
			return nil, eris.Errorf("firecrawl: job %s failed: %s", job.ID, msg)
		}

		var progress float64
		if status.Total > 0 {
			progress = float64(status.Completed) / float64(status.Total) * 100
		}
		log.Info("crawl job in progress",
			zap.String("status", status.Status),
			zap.Float64("progress_pct", progress),
			zap.Int("completed", status.Completed),
			zap.Int("total", status.Total),
		)

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "firecrawl: poll job %s (url: %s) interrupted", job.ID, job.SourceURL)
		case <-time.After(cfg.interval):
		}
	}
}
