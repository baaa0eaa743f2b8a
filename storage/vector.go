package storage

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/newsindex/core"
)

// KeywordSimilarity is the fixed score reported for keyword matches.
const KeywordSimilarity = 0.5

// CheckDimensions returns ErrDimensionMismatch unless len(vector) == dims.
func CheckDimensions(vector []float32, dims int) error {
	if len(vector) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dims)
	}
	return nil
}

// CosineDistance returns 1 - cosine similarity of two equal-length vectors.
// A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Distance scores an article against a query vector for the requested field.
// It reports false when the article lacks a required embedding.
func Distance(a *core.Article, q NearestQuery) (float64, bool) {
	switch q.Field {
	case core.FieldTitle, core.FieldSummary:
		v := a.Embedding(q.Field)
		if len(v) == 0 {
			return 0, false
		}
		return CosineDistance(q.Vector, v), true
	case core.FieldBoth:
		if len(a.TitleEmbedding) == 0 || len(a.SummaryEmbedding) == 0 {
			return 0, false
		}
		return q.Combine.Combine(
			CosineDistance(q.Vector, a.TitleEmbedding),
			CosineDistance(q.Vector, a.SummaryEmbedding),
		), true
	}
	return 0, false
}

// NewResult builds a search result from a distance.
func NewResult(a *core.Article, distance float64) *core.SearchResult {
	return &core.SearchResult{Article: a, Distance: distance, Similarity: 1 - distance}
}

// SortResults orders results by ascending distance, ties on ascending ID,
// and keeps at most topK of them. A non-positive topK keeps everything.
func SortResults(results []*core.SearchResult, topK int) []*core.SearchResult {
	slices.SortFunc(results, func(x, y *core.SearchResult) int {
		if c := cmp.Compare(x.Distance, y.Distance); c != 0 {
			return c
		}
		return cmp.Compare(x.Article.Id, y.Article.Id)
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// SortNewestFirst orders articles by descending publish date, then descending ID.
func SortNewestFirst(articles []*core.Article) {
	slices.SortFunc(articles, func(x, y *core.Article) int {
		if c := y.PublishDate.Compare(x.PublishDate); c != 0 {
			return c
		}
		return cmp.Compare(y.Id, x.Id)
	})
}
