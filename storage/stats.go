package storage

import (
	"slices"
	"strings"
	"time"

	"github.com/poiesic/newsindex/core"
)

// SourceCount is the number of stored articles of one source site.
type SourceCount struct {
	Site     string
	Articles int
}

// CorpusStats summarizes the stored corpus.
type CorpusStats struct {
	Articles int
	// TitleEmbedded and SummaryEmbedded count articles carrying that field's vector.
	TitleEmbedded   int
	SummaryEmbedded int
	// Embedded counts articles carrying both vectors.
	Embedded int
	// Stale counts articles with at least one stale embedding.
	Stale int
	// EarliestDate and LatestDate bound the publish dates. Zero for an empty corpus.
	EarliestDate time.Time
	LatestDate   time.Time
	// Sources is ordered by site name.
	Sources []SourceCount
}

// Coverage returns the percentage of articles carrying both embeddings.
func (s *CorpusStats) Coverage() float64 {
	if s.Articles == 0 {
		return 0
	}
	return float64(s.Embedded) / float64(s.Articles) * 100
}

// StatsBuilder accumulates CorpusStats one article at a time for stores
// that answer by scanning.
type StatsBuilder struct {
	stats   CorpusStats
	sources map[string]int
}

// Add counts one article.
func (b *StatsBuilder) Add(a *core.Article) {
	if b.sources == nil {
		b.sources = make(map[string]int)
	}
	s := &b.stats
	s.Articles++
	b.sources[a.SourceSite]++

	hasTitle, hasSummary := len(a.TitleEmbedding) > 0, len(a.SummaryEmbedding) > 0
	if hasTitle {
		s.TitleEmbedded++
	}
	if hasSummary {
		s.SummaryEmbedded++
	}
	if hasTitle && hasSummary {
		s.Embedded++
	}
	if a.Stale() {
		s.Stale++
	}

	if !a.PublishDate.IsZero() {
		if s.EarliestDate.IsZero() || a.PublishDate.Before(s.EarliestDate) {
			s.EarliestDate = a.PublishDate
		}
		if a.PublishDate.After(s.LatestDate) {
			s.LatestDate = a.PublishDate
		}
	}
}

// Stats returns the accumulated statistics.
func (b *StatsBuilder) Stats() *CorpusStats {
	out := b.stats
	out.Sources = make([]SourceCount, 0, len(b.sources))
	for site, n := range b.sources {
		out.Sources = append(out.Sources, SourceCount{Site: site, Articles: n})
	}
	slices.SortFunc(out.Sources, func(x, y SourceCount) int {
		return strings.Compare(x.Site, y.Site)
	})
	return &out
}
