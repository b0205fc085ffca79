package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stacklok/toolhive-catalog-server/internal/config"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
	"github.com/stacklok/toolhive-catalog-server/internal/storage/sqlite"
)

// SQLiteFactory opens the embedded single-file store.
type SQLiteFactory struct {
	path string

	mu    sync.Mutex
	store *sqlite.Store
}

var _ Factory = (*SQLiteFactory)(nil)

// NewSQLiteFactory creates a factory for the configured SQLite path.
// The file and its parent directories are created on first use.
func NewSQLiteFactory(cfg *config.Config) (*SQLiteFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &SQLiteFactory{path: cfg.GetSQLitePath()}, nil
}

// CreateStore opens the database file and ensures the schema exists.
func (f *SQLiteFactory) CreateStore(ctx context.Context) (storage.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.store != nil {
		return f.store, nil
	}

	slog.Info("Opening SQLite catalog store", "path", f.path)
	store, err := sqlite.Open(ctx, f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	f.store = store
	return store, nil
}

// Cleanup closes the database file.
func (f *SQLiteFactory) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.store == nil {
		return
	}
	if err := f.store.Close(); err != nil {
		slog.Error("Failed to close sqlite store", "error", err)
	}
	f.store = nil
}
