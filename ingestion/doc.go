// Package ingestion moves extracted drafts into the article store.
//
// The Deduplicator is the write path: it upserts drafts keyed on their
// source URL and classifies each one as inserted, updated, skipped, failed
// or invalid. Embeddings are never touched here; an update whose text
// changed leaves them stale for the embedding batcher.
//
// The Pipeline runs one extraction worker per source site on a bounded
// worker pool. Each worker extracts its drafts, then upserts them or, in
// JSON-only mode, writes them to <dir>/<site>_<yyyymmdd>.json. Sites share
// nothing but the store. Per-item failures are counted in the run report,
// never returned.
package ingestion
