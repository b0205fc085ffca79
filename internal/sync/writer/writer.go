// Package writer contains the SyncWriter interface and the store-backed
// implementation that idempotently persists discovered catalog items.
package writer

import (
	"context"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

//go:generate mockgen -destination=mocks/mock_sync_writer.go -package=mocks -source=writer.go SyncWriter

// Counts summarizes the outcome of one Upsert call.
type Counts struct {
	Inserted     int      `json:"inserted"`
	Updated      int      `json:"updated"`
	Skipped      int      `json:"skipped"`
	Errors       int      `json:"errors"`
	ErrorDetails []string `json:"errorDetails,omitempty"`
}

// Total returns the number of items the counts account for.
func (c Counts) Total() int {
	return c.Inserted + c.Updated + c.Skipped + c.Errors
}

// SyncWriter persists a batch of discovered items.
type SyncWriter interface {
	// Upsert inserts new items, merges known ones over their stored version
	// and skips those whose merge changes nothing. Failures are isolated per
	// item and reported through Counts; Upsert itself never fails.
	Upsert(ctx context.Context, items []catalog.Item) Counts
}
