package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTopK is the number of results returned when a query sets none.
	DefaultTopK = 5

	tracerName = "github.com/poiesic/newsindex/search"
)

// Query describes one search request.
type Query struct {
	Text string
	// Field is title, summary or both. Empty means title.
	Field core.Field
	// TopK caps the results. Zero means DefaultTopK.
	TopK   int
	Filter core.Filter
}

// Searcher provides semantic search over stored articles.
type Searcher struct {
	repo            storage.ArticleRepository
	embedder        ai.Embedder
	combine         core.CombinePolicy
	keywordFallback bool
	logger          *slog.Logger
	tracer          trace.Tracer
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCombinePolicy selects how title and summary distances merge for field "both".
func WithCombinePolicy(policy core.CombinePolicy) Option {
	return func(s *Searcher) error {
		if policy != core.CombineAverage && policy != core.CombineMin {
			return fmt.Errorf("%w: unknown combine policy %d", ErrInvalidQuery, policy)
		}
		s.combine = policy
		return nil
	}
}

// WithKeywordFallback lets a Searcher without an embedder answer with
// keyword matching. It has no effect when an embedder is configured.
func WithKeywordFallback() Option {
	return func(s *Searcher) error {
		s.keywordFallback = true
		return nil
	}
}

// NewSearcher creates a new searcher. embedder may be nil only together
// with WithKeywordFallback.
func NewSearcher(repo storage.ArticleRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	s := &Searcher{
		repo:     repo,
		embedder: embedder,
		combine:  core.CombineAverage,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	if embedder == nil {
		if !s.keywordFallback {
			return nil, ErrEmbedderRequired
		}
		return s, nil
	}
	if embedder.Dimensions() != repo.Dimensions() {
		return nil, fmt.Errorf("%w: embedder %d, store %d", ErrDimensions, embedder.Dimensions(), repo.Dimensions())
	}
	return s, nil
}

// Search returns up to TopK articles ordered by ascending distance.
func (s *Searcher) Search(ctx context.Context, q Query) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor searches like Search, reporting each stage to monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, q Query, monitor SearchMonitor) (results []*core.SearchResult, err error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	q, err = normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "search", trace.WithAttributes(
		attribute.String("search.field", string(q.Field)),
		attribute.Int("search.top_k", q.TopK),
		attribute.String("search.source", q.Filter.SourceSite),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("search.hits", len(results)))
		span.End()
		monitor.Finish(results, err)
	}()

	monitor.Start(q)

	if s.embedder == nil {
		results, err = s.keyword(ctx, q)
		if err != nil {
			return nil, err
		}
		monitor.AfterRanking(results)
		return results, nil
	}

	vector, err := s.embedder.EmbedText(ctx, ai.TaskQuery, q.Text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", q.Text, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}
	if err := storage.CheckDimensions(vector, s.repo.Dimensions()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}
	monitor.AfterQueryEmbedding(vector)

	results, err = s.repo.FindNearest(ctx, storage.NearestQuery{
		Vector:  vector,
		Field:   q.Field,
		TopK:    q.TopK,
		Filter:  q.Filter,
		Combine: s.combine,
	})
	if err != nil {
		s.logger.Error("error ranking articles", "field", q.Field, "err", err)
		return nil, err
	}
	monitor.AfterRanking(results)

	s.logger.Debug("search finished", "field", q.Field, "hits", len(results))
	return results, nil
}

// KeywordSearch matches the query text case-insensitively against the
// requested fields. Results are newest first and carry a fixed similarity.
func (s *Searcher) KeywordSearch(ctx context.Context, q Query) ([]*core.SearchResult, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	return s.keyword(ctx, q)
}

func (s *Searcher) keyword(ctx context.Context, q Query) ([]*core.SearchResult, error) {
	return s.repo.SearchKeyword(ctx, storage.KeywordQuery{
		Text:   q.Text,
		Field:  q.Field,
		Limit:  q.TopK,
		Filter: q.Filter,
	})
}

// normalizeQuery trims the text, fills defaults and validates the rest.
func normalizeQuery(q Query) (Query, error) {
	q.Text = strings.Join(strings.Fields(q.Text), " ")
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	if q.Field == "" {
		q.Field = core.FieldTitle
	}
	if _, err := core.ParseField(string(q.Field)); err != nil {
		return q, err
	}
	if q.TopK < 0 {
		return q, fmt.Errorf("%w: topK must not be negative", ErrInvalidQuery)
	}
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	f := q.Filter
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return q, fmt.Errorf("%w: date range starts after it ends", ErrInvalidQuery)
	}
	return q, nil
}
