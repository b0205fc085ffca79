// Package sources discovers catalog items from external search providers.
//
// An Aggregator runs a fixed, ordered query set against a Searcher (the
// GitHub search API in production, see the github subpackage), keeps the
// first occurrence of every repository id, drops items rejected by the
// configured filtering.Filter, scores the rest and returns one list ranked
// by score and stars, truncated to the configured catalog size.
//
// Every query is retried through the retry package. A query that still
// fails contributes nothing to the result; discovery only fails when every
// query fails.
//
// Window exposes a contiguous slice of that ranking so the sync
// orchestrator can walk the catalog in batches.
package sources
