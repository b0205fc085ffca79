// Package enrichment fills the analysis fields of catalog items, either from
// an external oracle service or from local heuristics.
package enrichment

import (
	"context"
	"log/slog"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

//go:generate mockgen -destination=mocks/mock_enricher.go -package=mocks -source=enricher.go Enricher

// Enricher produces enrichment fields for one item.
type Enricher interface {
	Enrich(ctx context.Context, item catalog.Item) (catalog.Enrichment, error)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, item catalog.Item) (catalog.Enrichment, error)

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, item catalog.Item) (catalog.Enrichment, error) {
	return f(ctx, item)
}

type fallbackEnricher struct {
	primary  Enricher
	fallback Enricher
}

// WithFallback returns an Enricher that asks primary first and fills any
// field it leaves empty from fallback. A primary failure is logged and the
// fallback result is returned on its own.
func WithFallback(primary, fallback Enricher) Enricher {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &fallbackEnricher{primary: primary, fallback: fallback}
}

func (f *fallbackEnricher) Enrich(ctx context.Context, item catalog.Item) (catalog.Enrichment, error) {
	base, fbErr := f.fallback.Enrich(ctx, item)

	got, err := f.primary.Enrich(ctx, item)
	if err != nil {
		slog.DebugContext(ctx, "Enrichment oracle failed, using defaults",
			"project_id", item.ID,
			"error", err)
		return base, fbErr
	}
	if fbErr != nil {
		return got, nil
	}
	return got.MergeOver(base), nil
}
