package api

import (
	"time"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/service"
	"github.com/stacklok/toolhive-catalog-server/internal/sync/position"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// ProjectsResponse is the body of GET /v1/projects
type ProjectsResponse struct {
	Projects   []catalog.Item `json:"projects"`
	Total      int            `json:"total"`
	Strategy   string         `json:"strategy"`
	Source     service.Source `json:"source"`
	Cached     bool           `json:"cached"`
	Stale      bool           `json:"stale"`
	CapturedAt time.Time      `json:"capturedAt,omitzero"`
}

// CacheClearResponse is the body of DELETE /v1/cache
type CacheClearResponse struct {
	Cleared bool              `json:"cleared"`
	Before  service.CacheInfo `json:"before"`
}

// PositionResponse is the body of POST /v1/sync/position/reset
type PositionResponse struct {
	Position position.Position `json:"position"`
}
