package writer

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

// Merge combines a stored item with its re-discovered version. Discovery
// fields come from incoming, except timestamps incoming does not carry.
// Stored enrichment is only replaced by non-empty incoming values, and the
// store's bookkeeping timestamps are kept.
func Merge(existing, incoming catalog.Item) catalog.Item {
	out := incoming
	if out.CreatedAt.IsZero() {
		out.CreatedAt = existing.CreatedAt
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = existing.UpdatedAt
	}
	out.Enrichment = incoming.Enrichment.MergeOver(existing.Enrichment)
	out.FirstSeenAt = existing.FirstSeenAt
	out.LastSyncedAt = existing.LastSyncedAt
	return out
}

var itemComparison = []cmp.Option{
	cmpopts.IgnoreFields(catalog.Item{}, "FirstSeenAt", "LastSyncedAt"),
	cmpopts.EquateEmpty(),
	cmpopts.EquateApproxTime(time.Millisecond),
}

// Changed reports whether writing merged would alter the stored item.
func Changed(existing, merged catalog.Item) bool {
	return !cmp.Equal(existing, merged, itemComparison...)
}

// Diff describes what a merge would change, for debug logging.
func Diff(existing, merged catalog.Item) string {
	return cmp.Diff(existing, merged, itemComparison...)
}
