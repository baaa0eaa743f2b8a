package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
)

// ArticleRepository implements storage.ArticleRepository for BadgerDB.
// Nearest-neighbor queries are answered by an exhaustive cosine scan.
type ArticleRepository struct {
	backend     *Backend
	idSeq       *badger.Sequence
	dims        int
	ownsBackend bool
	logger      *slog.Logger
}

var _ storage.ArticleRepository = (*ArticleRepository)(nil)

// newArticleRepository is an internal constructor that returns the concrete type.
func newArticleRepository(backend *Backend, dims int) (*ArticleRepository, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", storage.ErrInvalidQuery)
	}
	idSeq, err := backend.GetSequence(articleIDSeq)
	if err != nil {
		return nil, err
	}

	return &ArticleRepository{
		backend: backend,
		idSeq:   idSeq,
		dims:    dims,
		logger:  slog.Default().With("component", "badger-articles"),
	}, nil
}

// NewArticleRepository creates an article repository on an open backend.
// The caller keeps ownership of the backend.
func NewArticleRepository(backend *Backend, dims int) (storage.ArticleRepository, error) {
	return newArticleRepository(backend, dims)
}

// NewRepository opens (or creates) a database directory and returns a
// repository that closes the database on Close.
func NewRepository(path string, dims int) (storage.ArticleRepository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	repo, err := newArticleRepository(backend, dims)
	if err != nil {
		backend.Close()
		return nil, err
	}
	repo.ownsBackend = true
	return repo, nil
}

// Close releases the ID sequence and, when owned, the database.
func (r *ArticleRepository) Close() error {
	err := r.idSeq.Release()
	if r.ownsBackend {
		err = errors.Join(err, r.backend.Close())
	}
	return err
}

// Dimensions returns the corpus embedding dimensionality.
func (r *ArticleRepository) Dimensions() int {
	return r.dims
}

// UpsertArticle inserts or refreshes the article stored under the draft's source URL.
func (r *ArticleRepository) UpsertArticle(ctx context.Context, draft *core.ArticleDraft) (*core.Article, core.UpsertOutcome, error) {
	if err := core.ValidateDraft(draft); err != nil {
		return nil, 0, err
	}

	var article *core.Article
	var outcome core.UpsertOutcome
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		article, outcome = nil, 0

		urlKey := makeArticleURLKey(draft.SourceURL)
		item, err := tx.Get(urlKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			article, err = r.insert(tx, draft, urlKey)
			outcome = core.OutcomeInserted
			return err
		}
		if err != nil {
			return err
		}

		var id core.ID
		if err := item.Value(func(val []byte) error {
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}
		existing, err := r.readArticle(tx, makeArticleKey(id))
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: url index points at missing article %d", storage.ErrNotFound, id)
		}

		if existing.Fingerprint == draft.Fingerprint() {
			article, outcome = existing, core.OutcomeSkipped
			return nil
		}

		oldDate, oldSite := existing.PublishDate, existing.SourceSite
		existing.ApplyDraft(draft)
		existing.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeArticleKey(existing.Id), storage.MarshalArticle(existing)); err != nil {
			return err
		}
		if !oldDate.Equal(existing.PublishDate) || oldSite != existing.SourceSite {
			if err := tx.Delete(makeArticleDateKey(oldDate, existing.Id)); err != nil {
				return err
			}
			if err := tx.Delete(makeArticleSourceKey(oldSite, oldDate, existing.Id)); err != nil {
				return err
			}
			if err := r.setIndexes(tx, existing); err != nil {
				return err
			}
		}
		article, outcome = existing, core.OutcomeUpdated
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	r.logger.Debug("upserted article", "id", article.Id, "url", article.SourceURL, "outcome", outcome)
	return article, outcome, nil
}

func (r *ArticleRepository) insert(tx *badger.Txn, draft *core.ArticleDraft, urlKey []byte) (*core.Article, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return nil, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		if nextID, err = r.idSeq.Next(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	article := &core.Article{Id: core.ID(nextID), CreatedAt: now, UpdatedAt: now}
	article.ApplyDraft(draft)
	article.SourceURL = draft.SourceURL

	if err := tx.Set(makeArticleKey(article.Id), storage.MarshalArticle(article)); err != nil {
		return nil, err
	}
	if err := tx.Set(urlKey, storage.MarshalID(article.Id)); err != nil {
		return nil, err
	}
	if err := r.setIndexes(tx, article); err != nil {
		return nil, err
	}
	return article, nil
}

func (r *ArticleRepository) setIndexes(tx *badger.Txn, a *core.Article) error {
	id := storage.MarshalID(a.Id)
	if err := tx.Set(makeArticleDateKey(a.PublishDate, a.Id), id); err != nil {
		return err
	}
	return tx.Set(makeArticleSourceKey(a.SourceSite, a.PublishDate, a.Id), id)
}

// GetArticle retrieves a single article by ID.
func (r *ArticleRepository) GetArticle(ctx context.Context, id core.ID) (*core.Article, error) {
	var result *core.Article
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readArticle(tx, makeArticleKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetArticleBySourceURL retrieves the article stored under a source URL.
func (r *ArticleRepository) GetArticleBySourceURL(ctx context.Context, sourceURL string) (*core.Article, error) {
	var result *core.Article
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeArticleURLKey(sourceURL))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		var id core.ID
		if err := item.Value(func(val []byte) error {
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}
		result, err = r.readArticle(tx, makeArticleKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetArticlesByDate returns the articles published on a calendar date, by ascending ID.
func (r *ArticleRepository) GetArticlesByDate(ctx context.Context, date time.Time) ([]*core.Article, error) {
	var results []*core.Article
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = r.readIndex(ctx, tx, makePartialArticleDateKey(date), false, 0)
		return err
	}, false)
	return results, err
}

// GetArticlesBySource returns the newest articles of a site.
func (r *ArticleRepository) GetArticlesBySource(ctx context.Context, sourceSite string, limit int) ([]*core.Article, error) {
	if limit <= 0 {
		limit = storage.DefaultSourceLimit
	}
	var results []*core.Article
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = r.readIndex(ctx, tx, makePartialArticleSourceKey(sourceSite), true, limit)
		return err
	}, false)
	return results, err
}

// readIndex follows index entries under prefix to their articles.
// A reverse scan yields the newest entries first.
func (r *ArticleRepository) readIndex(ctx context.Context, tx *badger.Txn, prefix []byte, reverse bool, limit int) ([]*core.Article, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	iter := tx.NewIterator(opts)
	defer iter.Close()

	seek := prefix
	if reverse {
		seek = append(bytes.Clone(prefix), 0xFF)
	}

	var results []*core.Article
	for iter.Seek(seek); iter.ValidForPrefix(prefix); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Read the ID from the index
		var id core.ID
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return nil, err
		}

		article, err := r.readArticle(tx, makeArticleKey(id))
		if err != nil {
			return nil, err
		}
		if article == nil {
			continue
		}
		results = append(results, article)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// ListEmbeddingCandidates returns articles needing embeddings, ascending by ID.
func (r *ArticleRepository) ListEmbeddingCandidates(ctx context.Context, q storage.CandidateQuery) ([]*core.Article, error) {
	if len(q.Fields) == 0 {
		return nil, fmt.Errorf("%w: no fields requested", storage.ErrInvalidQuery)
	}
	var results []*core.Article
	err := r.scan(ctx, func(a *core.Article) bool {
		if q.Selects(a) {
			results = append(results, a)
		}
		return q.Limit <= 0 || len(results) < q.Limit
	})
	return results, err
}

// SetEmbedding stores a field vector if the article text is unchanged since selection.
func (r *ArticleRepository) SetEmbedding(ctx context.Context, id core.ID, field core.Field, vector []float32, fingerprint string) error {
	if field != core.FieldTitle && field != core.FieldSummary {
		return fmt.Errorf("%w: %w", storage.ErrInvalidQuery, core.ErrInvalidField)
	}
	if err := storage.CheckDimensions(vector, r.dims); err != nil {
		return err
	}

	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeArticleKey(id)
		article, err := r.readArticle(tx, key)
		if err != nil {
			return err
		}
		if article == nil {
			return storage.ErrNotFound
		}
		if article.Fingerprint != fingerprint {
			return fmt.Errorf("%w: article %d", storage.ErrStaleWrite, id)
		}
		article.SetEmbedding(field, vector, fingerprint)
		return tx.Set(key, storage.MarshalArticle(article))
	})
}

// FindNearest ranks filtered articles by cosine distance to the query vector.
func (r *ArticleRepository) FindNearest(ctx context.Context, q storage.NearestQuery) ([]*core.SearchResult, error) {
	if err := storage.CheckDimensions(q.Vector, r.dims); err != nil {
		return nil, err
	}
	if _, err := core.ParseField(string(q.Field)); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	var results []*core.SearchResult
	err := r.scan(ctx, func(a *core.Article) bool {
		if !q.Filter.Matches(a) {
			return true
		}
		if d, ok := storage.Distance(a, q); ok {
			results = append(results, storage.NewResult(a, d))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return storage.SortResults(results, q.TopK), nil
}

// SearchKeyword matches the query text case-insensitively against title and/or summary.
func (r *ArticleRepository) SearchKeyword(ctx context.Context, q storage.KeywordQuery) ([]*core.SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty keyword", storage.ErrInvalidQuery)
	}
	fields := q.Field.Fields()

	var matches []*core.Article
	err := r.scan(ctx, func(a *core.Article) bool {
		if !q.Filter.Matches(a) {
			return true
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(a.SourceText(f)), needle) {
				matches = append(matches, a)
				break
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	storage.SortNewestFirst(matches)
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	results := make([]*core.SearchResult, len(matches))
	for i, a := range matches {
		results[i] = storage.NewResult(a, 1-storage.KeywordSimilarity)
	}
	return results, nil
}

// Count returns the number of stored articles.
func (r *ArticleRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(articlePrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Stats summarizes the corpus in one scan.
func (r *ArticleRepository) Stats(ctx context.Context) (*storage.CorpusStats, error) {
	var b storage.StatsBuilder
	err := r.scan(ctx, func(a *core.Article) bool {
		b.Add(a)
		return true
	})
	if err != nil {
		return nil, err
	}
	return b.Stats(), nil
}

// Helper methods

// scan visits every article in ascending ID order until fn returns false.
func (r *ArticleRepository) scan(ctx context.Context, fn func(*core.Article) bool) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(articlePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var article *core.Article
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				article, err = storage.UnmarshalArticle(val)
				return err
			}); err != nil {
				return err
			}
			if !fn(article) {
				return nil
			}
		}
		return nil
	}, false)
}

// readArticle reads an article from the transaction.
func (r *ArticleRepository) readArticle(tx *badger.Txn, key []byte) (*core.Article, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var article *core.Article
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		article, unmarshalErr = storage.UnmarshalArticle(val)
		return unmarshalErr
	})
	return article, err
}
