package firecrawl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements Client for testing the poll loop.
type mockClient struct {
	statusFunc func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error)
}

func (m *mockClient) Scrape(context.Context, ScrapeRequest) (*ScrapeResponse, error) {
	return nil, nil
}

func (m *mockClient) StartCrawl(context.Context, CrawlRequest) (*CrawlResponse, error) {
	return nil, nil
}

func (m *mockClient) CrawlStatus(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
	return m.statusFunc(ctx, statusURL)
}

func testJob() Job {
	return Job{
		ID:        "job1",
		StatusURL: "https://api.firecrawl.dev/v1/crawl/job1",
		SourceURL: "https://example.com",
	}
}

func TestPollJob_CompletesImmediately(t *testing.T) {
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			assert.Equal(t, "https://api.firecrawl.dev/v1/crawl/job1", statusURL)
			return &CrawlStatusResponse{
				Status: StatusCompleted,
				Total:  1,
				Data: []PageData{
					{SourceURL: "https://example.com", Markdown: "# Home"},
				},
			}, nil
		},
	}

	resp, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Len(t, resp.Data, 1)
}

func TestPollJob_CompletesAfterRetries(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			n := calls.Add(1)
			if n < 3 {
				return &CrawlStatusResponse{Status: "scraping", Completed: int(n), Total: 4}, nil
			}
			return &CrawlStatusResponse{
				Status: StatusCompleted,
				Total:  2,
				Data: []PageData{
					{SourceURL: "https://example.com", Markdown: "# Home"},
					{SourceURL: "https://example.com/about", Markdown: "# About"},
				},
			}, nil
		},
	}

	resp, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollJob_DeadlineExceeded(t *testing.T) {
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			return &CrawlStatusResponse{Status: "scraping"}, nil
		},
	}

	_, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
		WithPollTimeout(35*time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for job job1")
	assert.Contains(t, err.Error(), "https://example.com")
}

func TestPollJob_Failed(t *testing.T) {
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			return &CrawlStatusResponse{Status: StatusFailed, Message: "robots.txt disallows crawling"}, nil
		},
	}

	_, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robots.txt disallows crawling")
}

func TestPollJob_ErrorStatus(t *testing.T) {
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			return &CrawlStatusResponse{Status: StatusError}, nil
		},
	}

	_, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown crawl error")
}

func TestPollJob_TransportErrorIsFatal(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			calls.Add(1)
			return nil, &APIError{StatusCode: 500, Body: "server error"}
		},
	}

	_, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
	)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollJob_ContextCancelled(t *testing.T) {
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			return &CrawlStatusResponse{Status: "scraping"}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PollJob(ctx, mock, testJob(),
		WithPollInterval(50*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollJob_ZeroTotalDoesNotPanic(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		statusFunc: func(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
			if calls.Add(1) == 1 {
				return &CrawlStatusResponse{Status: "scraping", Completed: 0, Total: 0}, nil
			}
			return &CrawlStatusResponse{Status: StatusCompleted}, nil
		},
	}

	resp, err := PollJob(context.Background(), mock, testJob(),
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
}
