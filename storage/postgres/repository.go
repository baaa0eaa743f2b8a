package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
)

// Repository implements storage.ArticleRepository on PostgreSQL with pgvector.
type Repository struct {
	pool   *pgxpool.Pool
	dims   int
	logger *slog.Logger
}

var _ storage.ArticleRepository = (*Repository)(nil)

// Option configures Open.
type Option func(*options)

type options struct {
	migrate  bool
	maxConns int32
	logger   *slog.Logger
}

// WithoutMigrate skips schema creation on Open.
func WithoutMigrate() Option {
	return func(o *options) { o.migrate = false }
}

// WithMaxConns caps the connection pool size.
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// WithLogger sets the repository logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Open connects to the database at connString, registers the pgvector types
// on every pooled connection and, unless disabled, migrates the schema.
func Open(ctx context.Context, connString string, dims int, opts ...Option) (*Repository, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", storage.ErrInvalidQuery)
	}
	o := options{migrate: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "postgres")
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	if o.maxConns > 0 {
		poolCfg.MaxConns = o.maxConns
	}

	r := &Repository{dims: dims, logger: o.logger}
	if o.migrate {
		// The vector type must exist before AfterConnect can register it.
		if err := r.bootstrap(ctx, connString); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	r.pool = pool

	if o.migrate {
		if err := r.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	r.logger.Info("connected to database", "dimensions", dims)
	return r, nil
}

// bootstrap installs the vector extension over a plain connection.
func (r *Repository) bootstrap(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, schemaStatements(r.dims)[0]); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Dimensions returns the corpus embedding dimensionality.
func (r *Repository) Dimensions() int {
	return r.dims
}

// UpsertArticle inserts or refreshes the row stored under the draft's source URL.
// The unique constraint on source_url serializes concurrent writers.
func (r *Repository) UpsertArticle(ctx context.Context, draft *core.ArticleDraft) (*core.Article, core.UpsertOutcome, error) {
	if err := core.ValidateDraft(draft); err != nil {
		return nil, 0, err
	}
	query, args, err := upsertQuery(draft).ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("upsert article: %w", err)
	}
	var inserted bool
	article, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (*core.Article, error) {
		return scanArticle(row, &inserted)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetArticleBySourceURL(ctx, draft.SourceURL)
		if err != nil {
			return nil, 0, err
		}
		return existing, core.OutcomeSkipped, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("upsert article: %w", err)
	}

	outcome := core.OutcomeUpdated
	if inserted {
		outcome = core.OutcomeInserted
	}
	r.logger.Debug("upserted article", "id", article.Id, "url", article.SourceURL, "outcome", outcome)
	return article, outcome, nil
}

// GetArticle retrieves a single article by ID.
func (r *Repository) GetArticle(ctx context.Context, id core.ID) (*core.Article, error) {
	return r.queryOne(ctx, selectArticles().Where(sq.Eq{"id": int64(id)}))
}

// GetArticleBySourceURL retrieves the article stored under a source URL.
func (r *Repository) GetArticleBySourceURL(ctx context.Context, sourceURL string) (*core.Article, error) {
	return r.queryOne(ctx, selectArticles().Where(sq.Eq{"source_url": sourceURL}))
}

// GetArticlesByDate returns the articles published on a calendar date, by ascending ID.
func (r *Repository) GetArticlesByDate(ctx context.Context, date time.Time) ([]*core.Article, error) {
	return r.queryMany(ctx, selectArticles().
		Where(sq.Eq{"publish_date": core.TruncateDate(date)}).
		OrderBy("id"))
}

// GetArticlesBySource returns the newest articles of a site.
func (r *Repository) GetArticlesBySource(ctx context.Context, sourceSite string, limit int) ([]*core.Article, error) {
	if limit <= 0 {
		limit = storage.DefaultSourceLimit
	}
	return r.queryMany(ctx, selectArticles().
		Where(sq.Eq{"source_site": sourceSite}).
		OrderBy("publish_date DESC", "id DESC").
		Limit(uint64(limit)))
}

// ListEmbeddingCandidates returns articles needing embeddings, ascending by ID.
func (r *Repository) ListEmbeddingCandidates(ctx context.Context, q storage.CandidateQuery) ([]*core.Article, error) {
	b, err := candidateQuery(q)
	if err != nil {
		return nil, err
	}
	return r.queryMany(ctx, b)
}

// SetEmbedding stores a field vector if the article text is unchanged since selection.
func (r *Repository) SetEmbedding(ctx context.Context, id core.ID, field core.Field, vector []float32, fingerprint string) error {
	b, err := setEmbeddingQuery(id, field, vector, fingerprint)
	if err != nil {
		return err
	}
	if err := storage.CheckDimensions(vector, r.dims); err != nil {
		return err
	}

	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetArticle(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: article %d", storage.ErrStaleWrite, id)
}

// FindNearest ranks filtered articles by pgvector cosine distance.
func (r *Repository) FindNearest(ctx context.Context, q storage.NearestQuery) ([]*core.SearchResult, error) {
	if err := storage.CheckDimensions(q.Vector, r.dims); err != nil {
		return nil, err
	}
	b, err := nearestQuery(q)
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find nearest: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*core.SearchResult, error) {
		var distance float64
		a, err := scanArticle(row, &distance)
		if err != nil {
			return nil, err
		}
		return storage.NewResult(a, distance), nil
	})
}

// SearchKeyword matches the query text with ILIKE against title and/or summary.
func (r *Repository) SearchKeyword(ctx context.Context, q storage.KeywordQuery) ([]*core.SearchResult, error) {
	b, err := keywordQuery(q)
	if err != nil {
		return nil, err
	}
	articles, err := r.queryMany(ctx, b)
	if err != nil {
		return nil, err
	}
	results := make([]*core.SearchResult, len(articles))
	for i, a := range articles {
		results[i] = storage.NewResult(a, 1-storage.KeywordSimilarity)
	}
	return results, nil
}

// Count returns the number of stored articles.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM "+tableName).Scan(&count)
	return count, err
}

// Stats summarizes the corpus with aggregate queries.
func (r *Repository) Stats(ctx context.Context) (*storage.CorpusStats, error) {
	query, args, err := statsQuery().ToSql()
	if err != nil {
		return nil, err
	}
	var (
		stats          storage.CorpusStats
		earliest, last *time.Time
	)
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Articles, &stats.TitleEmbedded, &stats.SummaryEmbedded, &stats.Embedded, &stats.Stale,
		&earliest, &last,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus stats: %w", err)
	}
	if earliest != nil {
		stats.EarliestDate = core.TruncateDate(*earliest)
	}
	if last != nil {
		stats.LatestDate = core.TruncateDate(*last)
	}

	query, args, err = sourceCountsQuery().ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("source counts: %w", err)
	}
	stats.Sources, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.SourceCount, error) {
		var sc storage.SourceCount
		err := row.Scan(&sc.Site, &sc.Articles)
		return sc, err
	})
	if err != nil {
		return nil, fmt.Errorf("source counts: %w", err)
	}
	return &stats, nil
}

func (r *Repository) queryOne(ctx context.Context, b sq.SelectBuilder) (*core.Article, error) {
	articles, err := r.queryMany(ctx, b.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, storage.ErrNotFound
	}
	return articles[0], nil
}

func (r *Repository) queryMany(ctx context.Context, b sq.SelectBuilder) ([]*core.Article, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*core.Article, error) {
		return scanArticle(row)
	})
}

// scanArticle reads articleColumns followed by any extra columns.
func scanArticle(row pgx.Row, extra ...any) (*core.Article, error) {
	var (
		a                    core.Article
		id                   int64
		titleVec, summaryVec *pgvector.Vector
	)
	dest := []any{
		&id, &a.Title, &a.Reporter, &a.Summary, &a.Content, &a.PublishDate, &a.SourceURL, &a.SourceSite,
		&titleVec, &summaryVec, &a.Fingerprint, &a.TitleEmbeddedFingerprint, &a.SummaryEmbeddedFingerprint,
		&a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	a.Id = core.ID(id)
	a.PublishDate = core.TruncateDate(a.PublishDate)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if titleVec != nil {
		a.TitleEmbedding = titleVec.Slice()
	}
	if summaryVec != nil {
		a.SummaryEmbedding = summaryVec.Slice()
	}
	return &a, nil
}
