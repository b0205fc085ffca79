package app

import (
	"github.com/stacklok/toolhive-catalog-server/internal/service"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Store is the durable catalog store
	Store storage.Store

	// SyncManager runs sync cycles, scheduled or forced
	SyncManager pkgsync.Manager

	// SyncCoordinator schedules cycles; nil when scheduled sync is disabled
	SyncCoordinator coordinator.Coordinator

	// CatalogService serves the read path
	CatalogService service.Service
}
