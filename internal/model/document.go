package model

import "time"

// Mode selects how the loader retrieves content for a URL.
type Mode string

const (
	// ModeScrape fetches a single page synchronously.
	ModeScrape Mode = "scrape"
	// ModeCrawl submits a site crawl job and polls it to completion.
	ModeCrawl Mode = "crawl"
)

// Valid reports whether the mode is one the loader knows how to dispatch.
func (m Mode) Valid() bool {
	return m == ModeScrape || m == ModeCrawl
}

// Document is the loader's output unit: extracted text plus a metadata
// mapping (source URL, title, description, and prefixed service-reported
// extras). Content is never empty; pages without content are dropped
// before a Document is built.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// RunStatus tracks the lifecycle of a persisted load run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// LoadRun records one persisted invocation of the loader for a URL.
type LoadRun struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Mode      Mode      `json:"mode"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	Documents int       `json:"documents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredDocument is a Document persisted under a load run.
type StoredDocument struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Source returns the document's source URL from its metadata, or "".
func (d Document) Source() string {
	if s, ok := d.Metadata["source"].(string); ok {
		return s
	}
	return ""
}
