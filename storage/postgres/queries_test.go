package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements(1024)
	require.Len(t, stmts, 9)

	assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", stmts[0])
	assert.Contains(t, stmts[1], "title_embedding vector(1024)")
	assert.Contains(t, stmts[1], "summary_embedding vector(1024)")
	assert.Contains(t, stmts[1], "source_url VARCHAR(1000) NOT NULL UNIQUE")
	assert.Contains(t, stmts[1], "title VARCHAR(500) NOT NULL")
	assert.Contains(t, stmts[1], "title_embedded_fingerprint TEXT")
	assert.Contains(t, stmts[1], "summary_embedded_fingerprint TEXT")
	assert.Equal(t, "ALTER TABLE news_articles ADD COLUMN IF NOT EXISTS summary_embedded_fingerprint TEXT NOT NULL DEFAULT ''", stmts[3])

	hnsw := 0
	for _, s := range stmts {
		assert.True(t, strings.Contains(s, "IF NOT EXISTS"), s)
		if strings.Contains(s, "USING hnsw") {
			hnsw++
			assert.Contains(t, s, "vector_cosine_ops")
			assert.Contains(t, s, "m = 16, ef_construction = 64")
		}
	}
	assert.Equal(t, 2, hnsw)
}

func TestUpsertQuery(t *testing.T) {
	d := &core.ArticleDraft{
		Title:       "標題",
		Reporter:    "記者",
		Summary:     "- 重點",
		PublishDate: time.Date(2026, 1, 9, 13, 0, 0, 0, time.UTC),
		SourceURL:   "https://news.example.com/1",
		SourceSite:  "TVBS",
	}
	sql, args, err := upsertQuery(d).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO news_articles"))
	assert.Contains(t, sql, "ON CONFLICT (source_url) DO UPDATE SET")
	assert.Contains(t, sql, "news_articles.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint")
	assert.Contains(t, sql, "(xmax = 0) AS inserted")
	assert.NotContains(t, sql, "title_embedding =", "upsert must never touch embeddings")

	require.Len(t, args, 8)
	assert.Equal(t, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), args[4])
	assert.Equal(t, d.Fingerprint(), args[7])
}

func TestCandidateQuery(t *testing.T) {
	t.Run("missing embeddings", func(t *testing.T) {
		b, err := candidateQuery(storage.CandidateQuery{Fields: core.EmbeddableFields})
		require.NoError(t, err)
		sql, args, err := b.ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "title <> $1")
		assert.Contains(t, sql, "title_embedding IS NULL")
		assert.Contains(t, sql, "summary <> $2")
		assert.Contains(t, sql, "summary_embedding IS NULL")
		assert.Contains(t, sql, " OR ")
		assert.True(t, strings.HasSuffix(sql, "ORDER BY id"))
		assert.NotContains(t, sql, "<> fingerprint")
		assert.Equal(t, []any{"", ""}, args)
	})

	t.Run("stale and limit", func(t *testing.T) {
		b, err := candidateQuery(storage.CandidateQuery{Fields: []core.Field{core.FieldTitle}, IncludeStale: true, Limit: 5})
		require.NoError(t, err)
		sql, _, err := b.ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "(title_embedding IS NOT NULL AND title_embedded_fingerprint <> fingerprint)")
		assert.NotContains(t, sql, "summary <>")
		assert.NotContains(t, sql, "summary_embedded_fingerprint <>")
		assert.True(t, strings.HasSuffix(sql, "LIMIT 5"))
	})

	t.Run("force", func(t *testing.T) {
		b, err := candidateQuery(storage.CandidateQuery{Fields: core.EmbeddableFields, Force: true})
		require.NoError(t, err)
		sql, _, err := b.ToSql()
		require.NoError(t, err)

		assert.NotContains(t, sql, "IS NULL")
		assert.Contains(t, sql, "title <> $1")
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := candidateQuery(storage.CandidateQuery{})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
		_, err = candidateQuery(storage.CandidateQuery{Fields: []core.Field{core.FieldBoth}})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestNearestQuery(t *testing.T) {
	vec := []float32{1, 0, 0}

	t.Run("single field", func(t *testing.T) {
		b, err := nearestQuery(storage.NearestQuery{Vector: vec, Field: core.FieldTitle, TopK: 3})
		require.NoError(t, err)
		sql, args, err := b.ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "title_embedding <=> $1 AS distance")
		assert.Contains(t, sql, "WHERE title_embedding IS NOT NULL")
		assert.True(t, strings.HasSuffix(sql, "ORDER BY distance, id LIMIT 3"))
		require.Len(t, args, 1)
		assert.Equal(t, pgvector.NewVector(vec), args[0])
	})

	t.Run("both average", func(t *testing.T) {
		b, err := nearestQuery(storage.NearestQuery{Vector: vec, Field: core.FieldBoth})
		require.NoError(t, err)
		sql, args, err := b.ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "((title_embedding <=> $1) + (summary_embedding <=> $2)) / 2 AS distance")
		assert.Contains(t, sql, "summary_embedding IS NOT NULL")
		assert.Contains(t, sql, "title_embedding IS NOT NULL")
		assert.NotContains(t, sql, "LIMIT")
		assert.Len(t, args, 2)
	})

	t.Run("both min", func(t *testing.T) {
		b, err := nearestQuery(storage.NearestQuery{Vector: vec, Field: core.FieldBoth, Combine: core.CombineMin})
		require.NoError(t, err)
		sql, _, err := b.ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "LEAST(title_embedding <=> $1, summary_embedding <=> $2) AS distance")
	})

	t.Run("filters", func(t *testing.T) {
		from := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
		to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
		b, err := nearestQuery(storage.NearestQuery{
			Vector: vec,
			Field:  core.FieldSummary,
			Filter: core.Filter{SourceSite: "SETN", DateFrom: from, DateTo: to},
		})
		require.NoError(t, err)
		sql, args, err := b.ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "source_site = $2")
		assert.Contains(t, sql, "publish_date >= $3")
		assert.Contains(t, sql, "publish_date <= $4")
		require.Len(t, args, 4)
		assert.Equal(t, "SETN", args[1])
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), args[2])
		assert.Equal(t, to, args[3])
	})

	t.Run("invalid field", func(t *testing.T) {
		_, err := nearestQuery(storage.NearestQuery{Vector: vec, Field: "body"})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestKeywordQuery(t *testing.T) {
	b, err := keywordQuery(storage.KeywordQuery{Text: " 50%_off ", Field: core.FieldBoth, Limit: 20})
	require.NoError(t, err)
	sql, args, err := b.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "title ILIKE $1")
	assert.Contains(t, sql, "summary ILIKE $2")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY publish_date DESC, id DESC LIMIT 20"))
	assert.Equal(t, []any{`%50\%\_off%`, `%50\%\_off%`}, args)

	b, err = keywordQuery(storage.KeywordQuery{Text: "選舉", Field: core.FieldTitle})
	require.NoError(t, err)
	sql, _, err = b.ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "summary ILIKE")

	_, err = keywordQuery(storage.KeywordQuery{Text: "  ", Field: core.FieldBoth})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = keywordQuery(storage.KeywordQuery{Text: "x", Field: "body"})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestSetEmbeddingQuery(t *testing.T) {
	b, err := setEmbeddingQuery(core.ID(42), core.FieldSummary, []float32{1, 2}, "fp")
	require.NoError(t, err)
	sql, args, err := b.ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "UPDATE news_articles SET summary_embedding = $1, summary_embedded_fingerprint = $2 WHERE "))
	assert.Contains(t, sql, "fingerprint = $3")
	assert.Contains(t, sql, "id = $4")
	require.Len(t, args, 4)
	assert.Equal(t, "fp", args[1])
	assert.Equal(t, "fp", args[2])
	assert.Equal(t, int64(42), args[3])

	b, err = setEmbeddingQuery(core.ID(42), core.FieldTitle, []float32{1, 2}, "fp")
	require.NoError(t, err)
	sql, _, err = b.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "SET title_embedding = $1, title_embedded_fingerprint = $2")

	_, err = setEmbeddingQuery(core.ID(42), core.FieldBoth, []float32{1, 2}, "fp")
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestEmbeddingColumn(t *testing.T) {
	col, err := embeddingColumn(core.FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, "title_embedding", col)

	_, err = embeddingColumn(core.FieldBoth)
	assert.ErrorIs(t, err, core.ErrInvalidField)
}

func TestStatsQueries(t *testing.T) {
	sql, args, err := statsQuery().ToSql()
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.True(t, strings.HasPrefix(sql, "SELECT count(*), "))
	assert.Contains(t, sql, "count(*) FILTER (WHERE title_embedding IS NOT NULL AND summary_embedding IS NOT NULL)")
	assert.Contains(t, sql, "title_embedded_fingerprint <> fingerprint")
	assert.Contains(t, sql, "summary_embedded_fingerprint <> fingerprint")
	assert.True(t, strings.HasSuffix(sql, "min(publish_date), max(publish_date) FROM news_articles"))

	sql, _, err = sourceCountsQuery().ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT source_site, count(*) FROM news_articles GROUP BY source_site ORDER BY source_site", sql)
}
