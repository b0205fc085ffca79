// Package storage opens the configured catalog store. It lives apart from
// internal/storage so that it can depend on every store implementation.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/toolhive-catalog-server/internal/config"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory opens the durable store for the configured backend and owns the
// resources behind it (database file handle or connection pool).
type Factory interface {
	// CreateStore opens the store, creating or migrating its schema when
	// the backend is configured to do so. Repeated calls return the same store.
	CreateStore(ctx context.Context) (storage.Store, error)

	// Cleanup releases the resources held by the factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates the factory matching cfg.Storage.Type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypePostgres:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeSQLite:
		return NewSQLiteFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
