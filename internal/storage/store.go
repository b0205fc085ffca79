// Package storage defines the durable catalog store shared by the SQLite and
// PostgreSQL implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// ErrNotFound is returned when no item matches a lookup.
var ErrNotFound = errors.New("catalog item not found")

// ItemError records the failure to persist one item of a batch.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string {
	return "item " + e.ID + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// PositionRecord is the persisted form of the sync cursor.
type PositionRecord struct {
	LastProcessedIndex int
	TotalKnown         int
	LastSyncTime       time.Time
	SyncCount          int
	IsComplete         bool
}

// Store is the durable keyed record store for catalog items.
type Store interface {
	// Ping verifies connectivity
	Ping(ctx context.Context) error

	// ListAll returns every item ordered by score and stars, both descending
	ListAll(ctx context.Context) ([]catalog.Item, error)

	// GetByID returns the item with the given identifier or ErrNotFound
	GetByID(ctx context.Context, id string) (catalog.Item, error)

	// GetByOwnerName looks up an item by its case-insensitive owner/name pair
	GetByOwnerName(ctx context.Context, owner, name string) (catalog.Item, error)

	// UpsertBatch inserts or replaces items keyed by ID. A failure on one
	// item does not prevent the others from being written; the failures
	// are returned. FirstSeenAt of an existing row is never overwritten.
	UpsertBatch(ctx context.Context, items []catalog.Item) []ItemError

	// Count returns the number of stored items
	Count(ctx context.Context) (int, error)

	// LoadPosition returns the stored sync cursor, or ok=false if none exists
	LoadPosition(ctx context.Context) (rec PositionRecord, ok bool, err error)

	// SavePosition replaces the stored sync cursor
	SavePosition(ctx context.Context, rec PositionRecord) error

	// Close releases the underlying resources
	Close() error
}
