package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/ai/mock"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
	"github.com/poiesic/newsindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dims = mock.DefaultDimensions

func date(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	title, summary, site string
	day                  int
	embedded             bool
}

var fixtures = []fixture{
	{"立院三讀通過總預算", "- 行政院表示將依法執行", "SETN", 7, true},
	{"外交部回應國際情勢", "- 外交部召開記者會", "TVBS", 7, true},
	{"颱風來襲全台停班停課", "- 各縣市宣布停班停課", "TVBS", 8, true},
	{"股市收盤上漲", "- 台股終場上漲百點", "SETN", 7, false},
	{"立院三讀通過總預算案", "- 在野黨提出質疑", "ChinaTimes", 6, true},
}

// newTestCorpus stores the fixtures and returns them in fixture order.
func newTestCorpus(t *testing.T) (storage.ArticleRepository, []*core.Article) {
	t.Helper()
	repo, err := badger.NewMemoryRepository(dims)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	articles := make([]*core.Article, 0, len(fixtures))
	for i, f := range fixtures {
		a, _, err := repo.UpsertArticle(ctx, &core.ArticleDraft{
			Title:       f.title,
			Summary:     f.summary,
			PublishDate: date(f.day),
			SourceURL:   "https://news.example.com/" + string(rune('a'+i)),
			SourceSite:  f.site,
		})
		require.NoError(t, err)
		if f.embedded {
			require.NoError(t, repo.SetEmbedding(ctx, a.Id, core.FieldTitle, mock.Vector(f.title, dims), a.Fingerprint))
			require.NoError(t, repo.SetEmbedding(ctx, a.Id, core.FieldSummary, mock.Vector(f.summary, dims), a.Fingerprint))
		}
		articles = append(articles, a)
	}
	return repo, articles
}

func ids(results []*core.SearchResult) []core.ID {
	out := make([]core.ID, len(results))
	for i, r := range results {
		out[i] = r.Article.Id
	}
	return out
}

func TestNewSearcher(t *testing.T) {
	repo, _ := newTestCorpus(t)

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(repo, mock.NewMockEmbedder(), WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := NewSearcher(nil, mock.NewMockEmbedder())
		assert.Equal(t, ErrRepositoryRequired, err)
	})

	t.Run("nil embedder without fallback", func(t *testing.T) {
		_, err := NewSearcher(repo, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := NewSearcher(repo, mock.NewMockEmbedder().WithDimensions(3))
		assert.ErrorIs(t, err, ErrDimensions)
	})

	t.Run("unknown combine policy", func(t *testing.T) {
		_, err := NewSearcher(repo, mock.NewMockEmbedder(), WithCombinePolicy(core.CombinePolicy(7)))
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestSearch_OwnTitleRanksFirst(t *testing.T) {
	repo, articles := newTestCorpus(t)
	embedder := mock.NewMockEmbedder()
	searcher, err := NewSearcher(repo, embedder)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), Query{Text: "  立院三讀通過總預算 "})
	require.NoError(t, err)
	require.Len(t, results, 4, "the article without embeddings is excluded")
	assert.Equal(t, articles[0].Id, results[0].Article.Id)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1, results[0].Similarity, 1e-6)
	assert.NotContains(t, ids(results), articles[3].Id)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	calls := embedder.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ai.TaskQuery, calls[0].Task)
	assert.Equal(t, []string{"立院三讀通過總預算"}, calls[0].Texts)
}

func TestSearch_FiltersBeforeRanking(t *testing.T) {
	repo, articles := newTestCorpus(t)
	searcher, err := NewSearcher(repo, mock.NewMockEmbedder())
	require.NoError(t, err)
	ctx := context.Background()

	results, err := searcher.Search(ctx, Query{Text: fixtures[0].title, TopK: 2, Filter: core.Filter{SourceSite: "TVBS"}})
	require.NoError(t, err)
	require.Len(t, results, 2, "topK is filled from matching articles")
	for _, r := range results {
		assert.Equal(t, "TVBS", r.Article.SourceSite)
	}

	results, err = searcher.Search(ctx, Query{Text: fixtures[0].title, Filter: core.Filter{DateFrom: date(8)}})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{articles[2].Id}, ids(results))

	results, err = searcher.Search(ctx, Query{Text: fixtures[0].title, Filter: core.Filter{DateFrom: date(6), DateTo: date(6)}})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{articles[4].Id}, ids(results))
}

func TestSearch_TopK(t *testing.T) {
	repo, _ := newTestCorpus(t)
	searcher, err := NewSearcher(repo, mock.NewMockEmbedder())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), Query{Text: "預算", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_SummaryField(t *testing.T) {
	repo, articles := newTestCorpus(t)
	searcher, err := NewSearcher(repo, mock.NewMockEmbedder())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), Query{Text: fixtures[1].summary, Field: core.FieldSummary})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, articles[1].Id, results[0].Article.Id)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestSearch_BothFields(t *testing.T) {
	repo, articles := newTestCorpus(t)
	ctx := context.Background()
	query := fixtures[2].title
	q := mock.Vector(query, dims)
	summaryDistance := storage.CosineDistance(q, mock.Vector(fixtures[2].summary, dims))

	t.Run("average", func(t *testing.T) {
		searcher, err := NewSearcher(repo, mock.NewMockEmbedder())
		require.NoError(t, err)
		results, err := searcher.Search(ctx, Query{Text: query, Field: core.FieldBoth})
		require.NoError(t, err)
		require.Len(t, results, 4)

		var found bool
		for _, r := range results {
			if r.Article.Id == articles[2].Id {
				found = true
				assert.InDelta(t, summaryDistance/2, r.Distance, 1e-6)
			}
		}
		assert.True(t, found)
	})

	t.Run("min", func(t *testing.T) {
		searcher, err := NewSearcher(repo, mock.NewMockEmbedder(), WithCombinePolicy(core.CombineMin))
		require.NoError(t, err)
		results, err := searcher.Search(ctx, Query{Text: query, Field: core.FieldBoth})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, articles[2].Id, results[0].Article.Id)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
	})
}

func TestSearch_QueryEmbeddingFailure(t *testing.T) {
	repo, _ := newTestCorpus(t)

	t.Run("provider error", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextFunc = func(ctx context.Context, task ai.TaskHint, text string) ([]float32, error) {
			return nil, errors.New("rate limited")
		}
		searcher, err := NewSearcher(repo, embedder, WithKeywordFallback())
		require.NoError(t, err)

		results, err := searcher.Search(context.Background(), Query{Text: "預算"})
		assert.ErrorIs(t, err, ErrQueryEmbedding)
		assert.Contains(t, err.Error(), "rate limited")
		assert.Nil(t, results, "keyword fallback never hides an embedding failure")
	})

	t.Run("wrong dimensions", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextFunc = func(ctx context.Context, task ai.TaskHint, text string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		}
		searcher, err := NewSearcher(repo, embedder)
		require.NoError(t, err)

		_, err = searcher.Search(context.Background(), Query{Text: "預算"})
		assert.ErrorIs(t, err, ErrQueryEmbedding)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})
}

func TestSearch_InvalidQueries(t *testing.T) {
	repo, _ := newTestCorpus(t)
	embedder := mock.NewMockEmbedder()
	searcher, err := NewSearcher(repo, embedder)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = searcher.Search(ctx, Query{Text: " \t "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = searcher.Search(ctx, Query{Text: "預算", Field: "content"})
	assert.ErrorIs(t, err, core.ErrInvalidField)

	_, err = searcher.Search(ctx, Query{Text: "預算", TopK: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = searcher.Search(ctx, Query{Text: "預算", Filter: core.Filter{DateFrom: date(8), DateTo: date(7)}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	assert.Zero(t, embedder.CallCount(), "invalid queries are rejected before embedding")
}

func TestSearch_KeywordFallback(t *testing.T) {
	repo, articles := newTestCorpus(t)
	searcher, err := NewSearcher(repo, nil, WithKeywordFallback())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), Query{Text: "總預算", Field: core.FieldBoth})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{articles[0].Id, articles[4].Id}, ids(results), "newest first")
	assert.InDelta(t, storage.KeywordSimilarity, results[0].Similarity, 1e-9)

	results, err = searcher.KeywordSearch(context.Background(), Query{Text: "台股", Field: core.FieldSummary})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{articles[3].Id}, ids(results))
}

// recordingMonitor records the order of monitor callbacks.
type recordingMonitor struct {
	events []string
	dims   int
	hits   int
	err    error
}

func (m *recordingMonitor) Start(q Query) { m.events = append(m.events, "start:"+string(q.Field)) }
func (m *recordingMonitor) AfterQueryEmbedding(v []float32) {
	m.events = append(m.events, "embedded")
	m.dims = len(v)
}
func (m *recordingMonitor) AfterRanking(results []*core.SearchResult) {
	m.events = append(m.events, "ranked")
	m.hits = len(results)
}
func (m *recordingMonitor) Finish(results []*core.SearchResult, err error) {
	m.events = append(m.events, "finish")
	m.err = err
}

func TestSearchWithMonitor(t *testing.T) {
	repo, _ := newTestCorpus(t)
	searcher, err := NewSearcher(repo, mock.NewMockEmbedder())
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	results, err := searcher.SearchWithMonitor(context.Background(), Query{Text: "預算", TopK: 3}, monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start:title", "embedded", "ranked", "finish"}, monitor.events)
	assert.Equal(t, dims, monitor.dims)
	assert.Equal(t, len(results), monitor.hits)
	assert.NoError(t, monitor.err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, task ai.TaskHint, text string) ([]float32, error) {
		return nil, errors.New("down")
	}
	failing, err := NewSearcher(repo, embedder)
	require.NoError(t, err)
	monitor = &recordingMonitor{}
	_, err = failing.SearchWithMonitor(context.Background(), Query{Text: "預算"}, monitor)
	require.Error(t, err)
	assert.Equal(t, []string{"start:title", "finish"}, monitor.events)
	assert.ErrorIs(t, monitor.err, ErrQueryEmbedding)
}

func TestLogMonitor(t *testing.T) {
	repo, _ := newTestCorpus(t)
	searcher, err := NewSearcher(repo, mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = searcher.SearchWithMonitor(context.Background(), Query{Text: "預算"}, NewLogMonitor(nil))
	assert.NoError(t, err)
}
