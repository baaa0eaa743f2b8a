package storage

import (
	"context"
	"time"

	"github.com/poiesic/newsindex/core"
)

// DefaultSourceLimit caps GetArticlesBySource when no limit is given.
const DefaultSourceLimit = 100

// CandidateQuery selects articles for the embedding batcher.
type CandidateQuery struct {
	// Fields are the embedding fields being computed. Required.
	Fields []core.Field

	// Force selects every article with non-empty source text for any field,
	// regardless of existing embeddings.
	Force bool

	// IncludeStale also re-embeds fields whose stored embedding was
	// computed from text that has since changed.
	IncludeStale bool

	// Limit caps the selection. Zero means no cap.
	Limit int
}

// NeedsField reports whether an article should be embedded for field under q.
func (q CandidateQuery) NeedsField(a *core.Article, field core.Field) bool {
	if a.SourceText(field) == "" {
		return false
	}
	if q.Force || len(a.Embedding(field)) == 0 {
		return true
	}
	return q.IncludeStale && a.FieldStale(field)
}

// Selects reports whether an article is a candidate for any requested field.
func (q CandidateQuery) Selects(a *core.Article) bool {
	for _, f := range q.Fields {
		if q.NeedsField(a, f) {
			return true
		}
	}
	return false
}

// NearestQuery describes a nearest-neighbor lookup over one embedding column,
// or both combined.
type NearestQuery struct {
	Vector []float32
	Field  core.Field
	TopK   int
	Filter core.Filter
	// Combine merges title and summary distances when Field is core.FieldBoth.
	Combine core.CombinePolicy
}

// KeywordQuery describes a case-insensitive substring search.
type KeywordQuery struct {
	Text   string
	Field  core.Field
	Limit  int
	Filter core.Filter
}

// ArticleRepository persists articles and answers vector queries over them.
// Implementations must be thread-safe and support concurrent access.
type ArticleRepository interface {
	// UpsertArticle inserts a draft under its source URL or, when a row with
	// that URL exists, overwrites its text fields if the fingerprint changed.
	// Embedding fields are never modified. Concurrent upserts of the same URL
	// resolve to exactly one insert.
	UpsertArticle(ctx context.Context, draft *core.ArticleDraft) (*core.Article, core.UpsertOutcome, error)

	// GetArticle retrieves a single article by ID.
	// Returns ErrNotFound if the article doesn't exist.
	GetArticle(ctx context.Context, id core.ID) (*core.Article, error)

	// GetArticleBySourceURL retrieves the article stored under a source URL.
	// Returns ErrNotFound if the article doesn't exist.
	GetArticleBySourceURL(ctx context.Context, sourceURL string) (*core.Article, error)

	// GetArticlesByDate returns the articles published on the given calendar date,
	// ordered by ID.
	GetArticlesByDate(ctx context.Context, date time.Time) ([]*core.Article, error)

	// GetArticlesBySource returns up to limit articles of a source site,
	// newest publish date first. A non-positive limit means DefaultSourceLimit.
	GetArticlesBySource(ctx context.Context, sourceSite string, limit int) ([]*core.Article, error)

	// ListEmbeddingCandidates returns the articles selected by q in ascending ID order.
	ListEmbeddingCandidates(ctx context.Context, q CandidateQuery) ([]*core.Article, error)

	// SetEmbedding stores one field's vector, recording fingerprint as that
	// field's embedded fingerprint, if the article's fingerprint still equals
	// fingerprint. Returns ErrStaleWrite when the text changed since
	// selection, ErrDimensionMismatch for a vector of the wrong size and
	// ErrNotFound for an unknown ID.
	SetEmbedding(ctx context.Context, id core.ID, field core.Field, vector []float32, fingerprint string) error

	// FindNearest ranks articles that pass the filter and carry the queried
	// embedding(s) by ascending cosine distance. Ties break on ascending ID.
	FindNearest(ctx context.Context, q NearestQuery) ([]*core.SearchResult, error)

	// SearchKeyword matches the query text against the requested text fields.
	// Results are newest first with a fixed similarity.
	SearchKeyword(ctx context.Context, q KeywordQuery) ([]*core.SearchResult, error)

	// Count returns the number of stored articles.
	Count(ctx context.Context) (int, error)

	// Stats summarizes the corpus: totals, embedding coverage, staleness,
	// the publish date range and per-source counts.
	Stats(ctx context.Context) (*CorpusStats, error)

	// Dimensions returns the corpus-wide embedding dimensionality.
	Dimensions() int

	// Close closes the storage backend and releases resources.
	Close() error
}
