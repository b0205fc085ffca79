// Package otel holds the span helpers and attribute keys shared by the
// catalog's traced components.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrProjectKey   = attribute.Key("catalog.project.key")
	AttrStrategy     = attribute.Key("catalog.strategy")
	AttrSource       = attribute.Key("catalog.source")
	AttrResultCount  = attribute.Key("result.count")
	AttrSyncRunID    = attribute.Key("sync.run_id")
	AttrSyncForced   = attribute.Key("sync.forced")
	AttrBatchStart   = attribute.Key("sync.batch.start")
	AttrBatchSize    = attribute.Key("sync.batch.size")
	AttrCacheOutcome = attribute.Key("cache.outcome")

	AttrItemsInserted = attribute.Key("sync.items.inserted")
	AttrItemsUpdated  = attribute.Key("sync.items.updated")
	AttrItemsSkipped  = attribute.Key("sync.items.skipped")
	AttrItemsErrors   = attribute.Key("sync.items.errors")
)

// StartSpan starts a span on tracer. A nil tracer yields the span already
// in ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// UpsertAttributes describes the outcome of one upsert batch.
func UpsertAttributes(inserted, updated, skipped, errors int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrItemsInserted.Int(inserted),
		AttrItemsUpdated.Int(updated),
		AttrItemsSkipped.Int(skipped),
		AttrItemsErrors.Int(errors),
	}
}

// RecordError marks span as failed. The status text stays generic so that
// connection strings and SQL never end up in it; err itself is attached as
// an event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
