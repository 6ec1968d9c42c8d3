package store

import (
	"context"

	"github.com/sells-group/webloader/internal/model"
)

// RunFilter specifies criteria for listing load runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	URL    string          `json:"url,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for load runs and their
// documents.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, url string, mode model.Mode) (*model.LoadRun, error)
	CompleteRun(ctx context.Context, runID string, documents int) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.LoadRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.LoadRun, error)

	// Documents
	SaveDocuments(ctx context.Context, runID string, docs []model.Document) error
	ListDocuments(ctx context.Context, runID string) ([]model.StoredDocument, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
