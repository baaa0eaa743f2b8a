package embedding

import (
	"fmt"
	"strings"

	"github.com/poiesic/newsindex/core"
)

// FieldStats counts per-field outcomes of article embeddings.
type FieldStats struct {
	Success int
	Failed  int
	// Skipped counts selected articles that did not need this field:
	// the embedding exists or the source text is empty.
	Skipped int
}

// Stats summarizes an embedding run. Every selected article is counted
// once in Success, Failed or Skipped: Failed when any of its field
// embeddings failed, Success when at least one was written and none
// failed, Skipped when nothing was attempted for it.
type Stats struct {
	Total         int
	Success       int
	Failed        int
	Skipped       int
	Batches       int
	FailedBatches int
	// ProviderCalls counts embedding requests, retries included.
	ProviderCalls int
	Fields        map[core.Field]FieldStats
}

func newStats(fields []core.Field) *Stats {
	s := &Stats{Fields: make(map[core.Field]FieldStats, len(fields))}
	for _, f := range fields {
		s.Fields[f] = FieldStats{}
	}
	return s
}

func (s *Stats) merge(r *batchResult) {
	s.Batches++
	if r.failed {
		s.FailedBatches++
	}
	s.ProviderCalls += r.calls
	for _, o := range r.outcomes {
		switch {
		case o.failed:
			s.Failed++
		case o.attempted:
			s.Success++
		default:
			s.Skipped++
		}
	}
	for f, fs := range r.fields {
		total := s.Fields[f]
		total.Success += fs.Success
		total.Failed += fs.Failed
		total.Skipped += fs.Skipped
		s.Fields[f] = total
	}
}

func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total=%d success=%d failed=%d skipped=%d batches=%d failed-batches=%d provider-calls=%d",
		s.Total, s.Success, s.Failed, s.Skipped, s.Batches, s.FailedBatches, s.ProviderCalls)
	for _, f := range core.EmbeddableFields {
		if fs, ok := s.Fields[f]; ok {
			fmt.Fprintf(&b, " %s=%d/%d/%d", f, fs.Success, fs.Failed, fs.Skipped)
		}
	}
	return b.String()
}

type outcome struct {
	attempted bool
	failed    bool
}

// batchResult is what one batch worker reports back.
type batchResult struct {
	outcomes []outcome
	fields   map[core.Field]FieldStats
	calls    int
	failed   bool
}

func newBatchResult(size int) *batchResult {
	return &batchResult{
		outcomes: make([]outcome, size),
		fields:   make(map[core.Field]FieldStats),
	}
}

func (r *batchResult) count(field core.Field, fn func(*FieldStats)) {
	fs := r.fields[field]
	fn(&fs)
	r.fields[field] = fs
}
