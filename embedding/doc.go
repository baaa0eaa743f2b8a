// Package embedding computes title and summary embeddings for stored articles.
//
// A Batcher selects the articles missing a requested embedding (or all of
// them when forced), splits them into batches and sends one provider call
// per batch and field with the passage task hint. Batches run on a bounded
// worker pool. A batch whose call fails after retries is counted as failed
// and its articles keep their old embedding columns, so the next run picks
// them up again; other batches are unaffected.
//
// Write-back is conditional on the article fingerprint captured at
// selection. If an upsert rewrites an article's text while its batch is in
// flight, the write is rejected and the article stays eligible.
package embedding
