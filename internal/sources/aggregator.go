package sources

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/filtering"
	"github.com/stacklok/toolhive-catalog-server/internal/retry"
	"github.com/stacklok/toolhive-catalog-server/internal/scoring"
)

//go:generate mockgen -destination=mocks/mock_searcher.go -package=mocks -source=aggregator.go Searcher

const (
	// DefaultPerPage is the page size requested for every discovery query
	DefaultPerPage = 100

	// DefaultMaxCatalogSize caps the number of items kept after ranking
	DefaultMaxCatalogSize = 1000
)

// DefaultQueries is the discovery query set used when none is configured.
var DefaultQueries = []string{
	"mcp server",
	"model context protocol",
	"mcp-server",
	"topic:mcp",
	"topic:model-context-protocol",
	"topic:mcp-server",
	"mcp client",
	"claude mcp",
}

// ErrAllQueriesFailed is returned when no discovery query produced a result.
var ErrAllQueriesFailed = errors.New("all discovery queries failed")

// Searcher runs a single paginated search against an external provider.
type Searcher interface {
	// Search returns up to perPage items of the 1-based page, ordered by popularity
	Search(ctx context.Context, query string, page, perPage int) ([]catalog.Item, error)
}

// AggregatorConfig configures discovery.
type AggregatorConfig struct {
	Queries        []string
	PerPage        int
	MaxCatalogSize int
	Retry          retry.Policy

	// Filter drops items before scoring; nil admits everything
	Filter *filtering.Filter
}

// Aggregator fans a fixed query set out to a Searcher and produces one
// ranked, de-duplicated item list.
type Aggregator struct {
	searcher Searcher
	scorer   *scoring.Scorer
	config   AggregatorConfig
}

// NewAggregator creates an Aggregator. Zero config values take defaults.
func NewAggregator(searcher Searcher, scorer *scoring.Scorer, config AggregatorConfig) *Aggregator {
	if len(config.Queries) == 0 {
		config.Queries = DefaultQueries
	}
	if config.PerPage <= 0 {
		config.PerPage = DefaultPerPage
	}
	if config.MaxCatalogSize <= 0 {
		config.MaxCatalogSize = DefaultMaxCatalogSize
	}
	if scorer == nil {
		scorer = scoring.New()
	}
	return &Aggregator{
		searcher: searcher,
		scorer:   scorer,
		config:   config,
	}
}

// Discover runs every query and returns the merged ranking. A failing query
// contributes nothing; only a failure of every query is an error.
func (a *Aggregator) Discover(ctx context.Context) ([]catalog.Item, error) {
	seen := make(map[string]struct{})
	var merged []catalog.Item
	failed := 0

	for _, query := range a.config.Queries {
		items, err := retry.Do(ctx, a.config.Retry, "github search", func(ctx context.Context) ([]catalog.Item, error) {
			return a.searcher.Search(ctx, query, 1, a.config.PerPage)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			slog.WarnContext(ctx, "Discovery query failed, skipping",
				"query", query,
				"error", err)
			continue
		}

		added, filtered := 0, 0
		for _, item := range items {
			if item.ID == "" {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			if ok, reason := a.config.Filter.Allow(item); !ok {
				filtered++
				slog.DebugContext(ctx, "Excluding project", "full_name", item.FullName, "reason", reason)
				continue
			}
			merged = append(merged, a.scorer.Apply(item.Normalize()))
			added++
		}
		slog.DebugContext(ctx, "Discovery query completed",
			"query", query,
			"returned", len(items),
			"new", added,
			"filtered", filtered)
	}

	if failed > 0 && failed == len(a.config.Queries) {
		return nil, fmt.Errorf("%w (%d queries)", ErrAllQueriesFailed, failed)
	}

	Rank(merged)
	if len(merged) > a.config.MaxCatalogSize {
		merged = merged[:a.config.MaxCatalogSize]
	}

	slog.InfoContext(ctx, "Discovery completed",
		"queries", len(a.config.Queries),
		"failed_queries", failed,
		"items", len(merged))
	return merged, nil
}

// Window returns the slice [start, start+size) of the discovered ranking
// together with the total ranking size.
func (a *Aggregator) Window(ctx context.Context, start, size int) ([]catalog.Item, int, error) {
	all, err := a.Discover(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if start < 0 {
		start = 0
	}
	if start >= total {
		return nil, total, nil
	}
	end := total
	if size > 0 && start+size < total {
		end = start + size
	}
	return all[start:end], total, nil
}

// Rank orders items by score, then stars, both descending. IDs break ties
// so the order is total.
func Rank(items []catalog.Item) {
	slices.SortStableFunc(items, func(x, y catalog.Item) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Stars, x.Stars); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
}
