package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the Firecrawl API.
const defaultBaseURL = "https://api.firecrawl.dev"

// defaultUserAgent identifies the loader on every outbound request.
const defaultUserAgent = "webloader (github.com/sells-group/webloader) Firecrawl Loader"

// defaultTimeout bounds each submission and status request.
const defaultTimeout = 30 * time.Second

// Crawl job statuses reported by the service. Anything else means the job
// is still in progress.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// Client defines the Firecrawl API operations the loader consumes.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
	StartCrawl(ctx context.Context, req CrawlRequest) (*CrawlResponse, error)
	// CrawlStatus fetches job status from the absolute polling address
	// returned by StartCrawl.
	CrawlStatus(ctx context.Context, statusURL string) (*CrawlStatusResponse, error)
}

// ScrapeOptions holds the per-page extraction settings sent with scrape
// requests and nested inside crawl submissions.
type ScrapeOptions struct {
	Formats            []string `json:"formats,omitempty"`
	OnlyMainContent    bool     `json:"onlyMainContent"`
	WaitFor            int      `json:"waitFor"`
	RemoveBase64Images bool     `json:"removeBase64Images,omitempty"`
	ExcludeTags        []string `json:"excludeTags,omitempty"`
}

// DefaultScrapeOptions returns the scrape option bundle used when the
// caller does not override it.
func DefaultScrapeOptions() ScrapeOptions {
	return ScrapeOptions{
		Formats:            []string{"markdown"},
		OnlyMainContent:    true,
		WaitFor:            500,
		RemoveBase64Images: true,
		ExcludeTags:        []string{"nav", "footer", "aside"},
	}
}

// CrawlOptions holds the crawl submission settings. ScrapeOptions controls
// the per-page extraction performed by the crawl job.
type CrawlOptions struct {
	Limit         int           `json:"limit,omitempty"`
	MaxDepth      int           `json:"maxDepth,omitempty"`
	Delay         float64       `json:"delay,omitempty"`
	ScrapeOptions ScrapeOptions `json:"scrapeOptions"`
}

// DefaultCrawlOptions returns the crawl option bundle used when the caller
// does not override it.
func DefaultCrawlOptions() CrawlOptions {
	return CrawlOptions{
		Limit:    1000,
		MaxDepth: 10,
		Delay:    0.1,
		ScrapeOptions: ScrapeOptions{
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
			WaitFor:         0,
			ExcludeTags:     []string{"nav", "footer", "aside"},
		},
	}
}

// ScrapeRequest is the body for POST /v1/scrape.
type ScrapeRequest struct {
	URL string `json:"url"`
	ScrapeOptions
}

// ScrapeData is the page payload inside a scrape response.
type ScrapeData struct {
	Markdown string         `json:"markdown,omitempty"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScrapeResponse is the response from POST /v1/scrape.
type ScrapeResponse struct {
	Success bool       `json:"success"`
	Data    ScrapeData `json:"data"`
	Error   string     `json:"error,omitempty"`
}

// CrawlRequest is the body for POST /v1/crawl.
type CrawlRequest struct {
	URL string `json:"url"`
	CrawlOptions
}

// CrawlResponse is the response from POST /v1/crawl. URL is the absolute
// status-polling address for the submitted job.
type CrawlResponse struct {
	Success bool   `json:"success,omitempty"`
	ID      string `json:"id"`
	URL     string `json:"url"`
	Message string `json:"message,omitempty"`
}

// PageData is a single page result accumulated by a crawl job.
type PageData struct {
	Markdown  string         `json:"markdown,omitempty"`
	Content   string         `json:"content,omitempty"`
	SourceURL string         `json:"sourceURL,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CrawlStatusResponse is the response from GET <status url>.
type CrawlStatusResponse struct {
	Status    string     `json:"status"`
	Completed int        `json:"completed,omitempty"`
	Total     int        `json:"total,omitempty"`
	Data      []PageData `json:"data,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// APIError is returned when Firecrawl responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent overrides the identifying User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithRateLimit paces outbound requests. Off by default.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey    string
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new Firecrawl client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	var resp ScrapeResponse
	if err := c.post(ctx, c.baseURL+"/v1/scrape", req, &resp); err != nil {
		return nil, eris.Wrap(err, "firecrawl: scrape")
	}
	return &resp, nil
}

func (c *httpClient) StartCrawl(ctx context.Context, req CrawlRequest) (*CrawlResponse, error) {
	var resp CrawlResponse
	if err := c.post(ctx, c.baseURL+"/v1/crawl", req, &resp); err != nil {
		return nil, eris.Wrap(err, "firecrawl: start crawl")
	}
	return &resp, nil
}

func (c *httpClient) CrawlStatus(ctx context.Context, statusURL string) (*CrawlStatusResponse, error) {
	var resp CrawlStatusResponse
	if err := c.get(ctx, statusURL, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("firecrawl: crawl status %s", statusURL))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, url string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return eris.Wrap(err, "rate limiter wait")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
