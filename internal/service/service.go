// Package service provides the read path of the catalog server: strategy
// driven reads from the durable store or a live discovery, served through a
// TTL cache with stale fallback.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

var (
	// ErrNotFound is returned when a project lookup matches nothing
	ErrNotFound = errors.New("project not found")
	// ErrUnknownStrategy is returned by ParseStrategy for unknown names
	ErrUnknownStrategy = errors.New("unknown strategy")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go CatalogService

// CatalogService defines the read operations of the catalog
type CatalogService interface {
	// CheckReadiness checks if the durable store can serve requests
	CheckReadiness(ctx context.Context) error

	// GetProjects returns the catalog read through strategy. It never fails:
	// when nothing can be read the result is empty.
	GetProjects(ctx context.Context, strategy Strategy) Result

	// GetProject looks up one project by its case-insensitive owner/name
	GetProject(ctx context.Context, owner, name string) (catalog.Item, error)

	// ClearCache drops the cached catalog
	ClearCache()

	// CacheInfo describes the cached catalog
	CacheInfo() CacheInfo

	// DefaultStrategy returns the strategy used when a caller names none
	DefaultStrategy() Strategy
}

// Source names where a result came from.
type Source string

const (
	// SourceDatabase is the durable store
	SourceDatabase Source = "database"
	// SourceGitHub is a live discovery against the search API
	SourceGitHub Source = "github"
	// SourceNone means nothing could be read
	SourceNone Source = "none"
)

// Result is the answer of GetProjects.
type Result struct {
	Items []catalog.Item `json:"items"`
	// Source is where the items were originally read from
	Source Source `json:"source"`
	// Cached is set when the items were served from the cache
	Cached bool `json:"cached"`
	// Stale is set when an expired cache entry was served as a last resort
	Stale bool `json:"stale"`
	// CapturedAt is when the items were read from Source
	CapturedAt time.Time `json:"capturedAt,omitzero"`
}

// CacheInfo describes the state of the catalog cache.
type CacheInfo struct {
	Populated  bool          `json:"populated"`
	Items      int           `json:"items"`
	Source     Source        `json:"source,omitempty"`
	CapturedAt time.Time     `json:"capturedAt,omitzero"`
	Age        time.Duration `json:"age"`
	TTL        time.Duration `json:"ttl"`
	Expired    bool          `json:"expired"`
}
