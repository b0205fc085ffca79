package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/enrichment"
	"github.com/stacklok/toolhive-catalog-server/internal/otel"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
)

const defaultEnrichTimeout = 30 * time.Second

// storeWriter is a SyncWriter that persists items through a storage.Store
type storeWriter struct {
	store         storage.Store
	enricher      enrichment.Enricher
	enrichTimeout time.Duration
	tracer        trace.Tracer
	logger        *slog.Logger
}

// Option configures the store writer.
type Option func(*storeWriter)

// WithEnricher fills enrichment for items that have none after merging.
func WithEnricher(e enrichment.Enricher) Option {
	return func(w *storeWriter) {
		w.enricher = e
	}
}

// WithEnrichTimeout bounds every enrichment call.
func WithEnrichTimeout(d time.Duration) Option {
	return func(w *storeWriter) {
		if d > 0 {
			w.enrichTimeout = d
		}
	}
}

// WithLogger sets the logger for per-item events. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(w *storeWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTracer sets the tracer used for the upsert span.
func WithTracer(t trace.Tracer) Option {
	return func(w *storeWriter) {
		w.tracer = t
	}
}

// NewStoreWriter creates a SyncWriter backed by store.
func NewStoreWriter(store storage.Store, opts ...Option) (SyncWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	w := &storeWriter{store: store, enrichTimeout: defaultEnrichTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

type pending struct {
	item   catalog.Item
	insert bool
}

// Upsert implements SyncWriter.
func (w *storeWriter) Upsert(ctx context.Context, items []catalog.Item) Counts {
	ctx, span := otel.StartSpan(ctx, w.tracer, "writer.Upsert",
		trace.WithAttributes(otel.AttrBatchSize.Int(len(items))))
	defer span.End()

	var counts Counts
	fail := func(id string, err error) {
		counts.Errors++
		counts.ErrorDetails = append(counts.ErrorDetails, fmt.Sprintf("%s: %v", id, err))
		w.logger.WarnContext(ctx, "Failed to persist catalog item", "project_id", id, "error", err)
	}

	seen := make(map[string]struct{}, len(items))
	writes := make([]pending, 0, len(items))

	for _, raw := range items {
		if raw.ID == "" {
			fail(raw.FullName, errors.New("item id is required"))
			continue
		}
		if _, dup := seen[raw.ID]; dup {
			counts.Skipped++
			continue
		}
		seen[raw.ID] = struct{}{}

		incoming := raw.Normalize()
		existing, err := w.store.GetByID(ctx, incoming.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writes = append(writes, pending{item: w.enrich(ctx, incoming), insert: true})
		case err != nil:
			fail(incoming.ID, err)
		default:
			merged := w.enrich(ctx, Merge(existing, incoming))
			if !Changed(existing, merged) {
				counts.Skipped++
				continue
			}
			if w.logger.Enabled(ctx, slog.LevelDebug) {
				w.logger.DebugContext(ctx, "Catalog item changed", "project_id", merged.ID, "diff", Diff(existing, merged))
			}
			writes = append(writes, pending{item: merged})
		}
	}

	if len(writes) > 0 {
		batch := make([]catalog.Item, len(writes))
		for i, p := range writes {
			batch[i] = p.item
		}
		failed := make(map[string]error)
		for _, ie := range w.store.UpsertBatch(ctx, batch) {
			failed[ie.ID] = ie.Err
		}
		for _, p := range writes {
			if err, ok := failed[p.item.ID]; ok {
				fail(p.item.ID, err)
				continue
			}
			if p.insert {
				counts.Inserted++
			} else {
				counts.Updated++
			}
		}
	}

	span.SetAttributes(otel.UpsertAttributes(counts.Inserted, counts.Updated, counts.Skipped, counts.Errors)...)
	if counts.Errors > 0 {
		otel.RecordError(span, fmt.Errorf("%d items failed to persist", counts.Errors))
	}
	return counts
}

// enrich fills enrichment when the item has none. Failures leave the item
// unchanged.
func (w *storeWriter) enrich(ctx context.Context, item catalog.Item) catalog.Item {
	if w.enricher == nil || !item.Enrichment.IsEmpty() {
		return item
	}
	ctx, cancel := context.WithTimeout(ctx, w.enrichTimeout)
	defer cancel()

	e, err := w.enricher.Enrich(ctx, item)
	if err != nil {
		w.logger.DebugContext(ctx, "Enrichment unavailable", "project_id", item.ID, "error", err)
		return item
	}
	item.Enrichment = e
	return item
}
