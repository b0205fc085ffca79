// Package sync runs catalog synchronization cycles.
//
// An Orchestrator cycle checks store connectivity, reads the circular
// cursor from the position manager, fetches the ranked window starting at
// that cursor, persists it through the writer and finally advances the
// cursor by the number of items fetched. Repeated bounded cycles therefore
// cover the whole catalog and then start over.
//
// At most one cycle runs at a time. A scheduled (non-forced) call that finds
// a cycle in flight returns a skipped SyncResult; a forced call gets
// ErrSyncInProgress. Scheduled calls are also gated by an optional
// time-of-day Window, which forced calls bypass.
//
// The coordinator subpackage drives scheduled cycles; the position and
// writer subpackages hold the cursor and the upsert layer.
package sync
