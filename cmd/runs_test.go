package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/webloader/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	runs := []model.LoadRun{
		{
			ID:        "run-1",
			URL:       "https://example.com",
			Mode:      model.ModeScrape,
			Status:    model.RunStatusCompleted,
			Documents: 3,
			CreatedAt: created,
			UpdatedAt: created.Add(42 * time.Second),
		},
		{
			ID:        "run-2",
			URL:       "https://other.com",
			Mode:      model.ModeCrawl,
			Status:    model.RunStatusFailed,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "https://example.com")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "failed")
}
