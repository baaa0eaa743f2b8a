package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
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

func testConfig(batchSize, workers int) Config {
	return Config{
		BatchSize:      batchSize,
		Workers:        workers,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		CallTimeout:    time.Second,
		ReportInterval: 1,
	}
}

func newTestRepo(t *testing.T) storage.ArticleRepository {
	t.Helper()
	repo, err := badger.NewMemoryRepository(mock.DefaultDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testDraft(n int) *core.ArticleDraft {
	return &core.ArticleDraft{
		Title:       fmt.Sprintf("標題 %d", n),
		Summary:     fmt.Sprintf("摘要 %d", n),
		Content:     fmt.Sprintf("內文 %d", n),
		PublishDate: time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
		SourceURL:   fmt.Sprintf("https://news.example.com/a/%d", n),
		SourceSite:  "SETN",
	}
}

func seed(t *testing.T, repo storage.ArticleRepository, n int) []*core.Article {
	t.Helper()
	articles := make([]*core.Article, 0, n)
	for i := 1; i <= n; i++ {
		a, _, err := repo.UpsertArticle(context.Background(), testDraft(i))
		require.NoError(t, err)
		articles = append(articles, a)
	}
	return articles
}

// embedAll reproduces the default mock behavior for custom embed functions.
func embedAll(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = mock.Vector(text, mock.DefaultDimensions)
	}
	return out
}

func TestBatcher_EmbedsAllFields(t *testing.T) {
	repo := newTestRepo(t)
	articles := seed(t, repo, 5)
	embedder := mock.NewMockEmbedder()
	var progress bytes.Buffer

	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(2, 2)), WithProgress(&progress))
	require.NoError(t, err)

	stats, err := b.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Success)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 6, stats.ProviderCalls)
	assert.Zero(t, stats.FailedBatches)
	assert.Equal(t, FieldStats{Success: 5}, stats.Fields[core.FieldTitle])
	assert.Equal(t, FieldStats{Success: 5}, stats.Fields[core.FieldSummary])
	assert.Contains(t, progress.String(), "Embedding 5 articles")
	assert.Contains(t, stats.String(), "title=5/0/0")

	for _, call := range embedder.Calls() {
		assert.Equal(t, ai.TaskPassage, call.Task)
		assert.LessOrEqual(t, len(call.Texts), 2)
	}

	for _, a := range articles {
		stored, err := repo.GetArticle(context.Background(), a.Id)
		require.NoError(t, err)
		assert.InDeltaSlice(t, mock.Vector(a.Title, mock.DefaultDimensions), stored.TitleEmbedding, 1e-6)
		assert.InDeltaSlice(t, mock.Vector(a.Summary, mock.DefaultDimensions), stored.SummaryEmbedding, 1e-6)
		assert.Equal(t, stored.Fingerprint, stored.TitleEmbeddedFingerprint)
		assert.Equal(t, stored.Fingerprint, stored.SummaryEmbeddedFingerprint)
	}

	// Nothing is left to embed, so a second run makes no provider calls.
	calls := embedder.CallCount()
	stats, err = b.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Equal(t, calls, embedder.CallCount())
}

func TestBatcher_BatchIsolation(t *testing.T) {
	repo := newTestRepo(t)
	articles := seed(t, repo, 6)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.HasSuffix(text, " 3") {
				return nil, errors.New("provider unavailable")
			}
		}
		return embedAll(texts), nil
	}

	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(2, 1)))
	require.NoError(t, err)

	stats, err := b.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Success)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 1, stats.FailedBatches)
	assert.Equal(t, 2+3+3+2, stats.ProviderCalls, "the failing batch retries each field")
	assert.Equal(t, FieldStats{Success: 4, Failed: 2}, stats.Fields[core.FieldTitle])

	for i, a := range articles {
		stored, err := repo.GetArticle(context.Background(), a.Id)
		require.NoError(t, err)
		if i == 2 || i == 3 {
			assert.Empty(t, stored.TitleEmbedding, "article %d", i+1)
			assert.Empty(t, stored.SummaryEmbedding, "article %d", i+1)
		} else {
			assert.Len(t, stored.TitleEmbedding, mock.DefaultDimensions, "article %d", i+1)
		}
	}

	// The failed articles stay eligible for the next run.
	embedder.Reset()
	stats, err = b.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Success)
}

func TestBatcher_DimensionMismatchIsNotRetried(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo, 2)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		return out, nil
	}

	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(10, 1)))
	require.NoError(t, err)

	stats, err := b.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.FailedBatches)
	assert.Equal(t, 2, stats.ProviderCalls)
}

func TestBatcher_ProviderValidationErrorsAreNotRetried(t *testing.T) {
	for _, sentinel := range []error{ai.ErrResponseCount, ai.ErrEmptyResponse, ai.ErrDimensionMismatch} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			repo := newTestRepo(t)
			seed(t, repo, 2)
			embedder := mock.NewMockEmbedder()
			embedder.EmbedTextsFunc = func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
				return nil, fmt.Errorf("%w: from provider", sentinel)
			}

			b, err := NewBatcher(repo, embedder, WithConfig(testConfig(10, 1)))
			require.NoError(t, err)

			stats, err := b.Run(context.Background(), RunOptions{Fields: []core.Field{core.FieldTitle}})
			require.NoError(t, err)
			assert.Equal(t, 2, stats.Failed)
			assert.Equal(t, 1, stats.ProviderCalls)
		})
	}
}

func TestBatcher_WrongVectorCount(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo, 2)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
		return embedAll(texts[:1]), nil
	}

	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(10, 1)))
	require.NoError(t, err)

	stats, err := b.Run(context.Background(), RunOptions{Fields: []core.Field{core.FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.ProviderCalls)
}

func TestBatcher_SkipsEmptyAndExistingFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seed(t, repo, 2)
	noSummary := testDraft(3)
	noSummary.Summary = ""
	_, _, err := repo.UpsertArticle(ctx, noSummary)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(10, 1)))
	require.NoError(t, err)

	stats, err := b.Run(ctx, RunOptions{Fields: []core.Field{core.FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Success)
	_, hasSummary := stats.Fields[core.FieldSummary]
	assert.False(t, hasSummary)

	stats, err = b.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total, "the article without summary text is not selected")
	assert.Equal(t, FieldStats{Skipped: 2}, stats.Fields[core.FieldTitle])
	assert.Equal(t, FieldStats{Success: 2}, stats.Fields[core.FieldSummary])
	assert.Equal(t, 2, stats.Success)
}

func TestBatcher_ForceAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo, 5)
	embedder := mock.NewMockEmbedder()
	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(10, 1)))
	require.NoError(t, err)

	stats, err := b.Run(context.Background(), RunOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	stats, err = b.Run(context.Background(), RunOptions{Force: true, BatchSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Success)
	assert.Equal(t, 1, stats.Batches)
}

func TestBatcher_StaleWrite(t *testing.T) {
	repo := newTestRepo(t)
	articles := seed(t, repo, 2)
	ctx := context.Background()

	var once sync.Once
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
		once.Do(func() {
			changed := testDraft(1)
			changed.Summary = "改寫後的摘要"
			_, outcome, err := repo.UpsertArticle(ctx, changed)
			assert.NoError(t, err)
			assert.Equal(t, core.OutcomeUpdated, outcome)
		})
		return embedAll(texts), nil
	}

	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(10, 1)))
	require.NoError(t, err)

	stats, err := b.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, FieldStats{Success: 1, Failed: 1}, stats.Fields[core.FieldTitle])

	stored, err := repo.GetArticle(ctx, articles[0].Id)
	require.NoError(t, err)
	assert.Empty(t, stored.TitleEmbedding)

	embedder.Reset()
	stats, err = b.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)

	stored, err = repo.GetArticle(ctx, articles[0].Id)
	require.NoError(t, err)
	assert.InDeltaSlice(t, mock.Vector("改寫後的摘要", mock.DefaultDimensions), stored.SummaryEmbedding, 1e-6)
}

func TestBatcher_StaleFieldStaysFlagged(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	original := testDraft(1)
	original.Summary = ""
	a, _, err := repo.UpsertArticle(ctx, original)
	require.NoError(t, err)

	b, err := NewBatcher(repo, mock.NewMockEmbedder(), WithConfig(testConfig(10, 1)))
	require.NoError(t, err)
	_, err = b.Run(ctx, RunOptions{})
	require.NoError(t, err)

	resighted := testDraft(1)
	resighted.Title = "完全不同的新標題"
	resighted.Summary = "- 新增的摘要"
	_, outcome, err := repo.UpsertArticle(ctx, resighted)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeUpdated, outcome)

	// A plain run only fills the missing summary.
	stats, err := b.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, FieldStats{Skipped: 1}, stats.Fields[core.FieldTitle])
	assert.Equal(t, FieldStats{Success: 1}, stats.Fields[core.FieldSummary])

	stored, err := repo.GetArticle(ctx, a.Id)
	require.NoError(t, err)
	assert.InDeltaSlice(t, mock.Vector(original.Title, mock.DefaultDimensions), stored.TitleEmbedding, 1e-6)
	assert.True(t, stored.FieldStale(core.FieldTitle), "title vector still comes from the old title")
	assert.False(t, stored.FieldStale(core.FieldSummary))
	assert.True(t, stored.Stale())

	stats, err = b.Run(ctx, RunOptions{IncludeStale: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, FieldStats{Success: 1}, stats.Fields[core.FieldTitle])
	assert.Equal(t, FieldStats{Skipped: 1}, stats.Fields[core.FieldSummary])

	stored, err = repo.GetArticle(ctx, a.Id)
	require.NoError(t, err)
	assert.InDeltaSlice(t, mock.Vector(resighted.Title, mock.DefaultDimensions), stored.TitleEmbedding, 1e-6)
	assert.False(t, stored.Stale())
}

func TestBatcher_CancelStopsNewBatches(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo, 6)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
		cancel()
		return embedAll(texts), nil
	}

	b, err := NewBatcher(repo, embedder, WithConfig(testConfig(2, 1)))
	require.NoError(t, err)

	stats, err := b.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, stats.Success, "the batch in flight completes")
	assert.Equal(t, 4, stats.Skipped)
	assert.Equal(t, 1, stats.Batches)
}

func TestNewBatcher_Validation(t *testing.T) {
	repo := newTestRepo(t)

	_, err := NewBatcher(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewBatcher(repo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewBatcher(repo, mock.NewMockEmbedder().WithDimensions(3))
	assert.ErrorIs(t, err, ErrDimensions)

	_, err = NewBatcher(repo, mock.NewMockEmbedder(), WithConfig(Config{Workers: -1}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Normalize(t *testing.T) {
	var c Config
	c.Normalize()
	assert.Equal(t, DefaultConfig(), c)
	assert.NoError(t, c.Validate())
	assert.Equal(t, 10, c.BatchSize)
	assert.Equal(t, 2, c.Workers)
}

func TestResolveFields(t *testing.T) {
	fields, err := resolveFields(nil)
	require.NoError(t, err)
	assert.Equal(t, []core.Field{core.FieldTitle, core.FieldSummary}, fields)

	fields, err = resolveFields([]core.Field{core.FieldSummary, core.FieldBoth})
	require.NoError(t, err)
	assert.Equal(t, []core.Field{core.FieldSummary, core.FieldTitle}, fields)

	_, err = resolveFields([]core.Field{"body"})
	assert.ErrorIs(t, err, core.ErrInvalidField)
}
