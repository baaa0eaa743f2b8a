package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/newsindex/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := ai.NewConfig(
		ai.WithEmbeddingProvider(ai.ProviderJina),
		ai.WithEmbeddingHost(srv.URL),
		ai.WithEmbeddingModel("jina-embeddings-v3"),
		ai.WithEmbeddingAPIKey("test-key"),
		ai.WithDimensions(3),
	)
	e, err := newEmbedder(cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return e
}

func TestEmbedTexts_Request(t *testing.T) {
	var got embeddingRequest
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		// Out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}],"usage":{"total_tokens":7}}`))
	})

	vectors, err := e.EmbedTexts(context.Background(), ai.TaskPassage, []string{"標題", "大綱"})
	require.NoError(t, err)

	assert.Equal(t, "jina-embeddings-v3", got.Model)
	assert.Equal(t, "retrieval.passage", got.Task)
	assert.Equal(t, 3, got.Dimensions)
	assert.Equal(t, "float", got.EncodingType)
	assert.False(t, got.LateChunking)
	assert.Equal(t, []string{"標題", "大綱"}, got.Input)

	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1, 0}, vectors[1])
}

func TestEmbedText_QueryTask(t *testing.T) {
	var task string
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		task = req.Task
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0,0,1]}]}`))
	})

	v, err := e.EmbedText(context.Background(), ai.TaskQuery, "選舉")
	require.NoError(t, err)
	assert.Equal(t, "retrieval.query", task)
	assert.Equal(t, []float32{0, 0, 1}, v)
	assert.Equal(t, 3, e.Dimensions())
}

func TestEmbedTexts_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"rate limited"}`))
		})
		_, err := e.EmbedTexts(context.Background(), ai.TaskPassage, []string{"a"})
		require.ErrorIs(t, err, ErrAPI)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
		})
		_, err := e.EmbedTexts(context.Background(), ai.TaskPassage, []string{"a"})
		assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
	})

	t.Run("missing vectors", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0,0]}]}`))
		})
		_, err := e.EmbedTexts(context.Background(), ai.TaskPassage, []string{"a", "b"})
		assert.ErrorIs(t, err, ai.ErrResponseCount)
	})

	t.Run("invalid task", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, err := e.EmbedTexts(context.Background(), ai.TaskHint("text-matching"), []string{"a"})
		assert.ErrorIs(t, err, ai.ErrInvalidTask)
	})
}

func TestNewEmbedder_RequiresKey(t *testing.T) {
	cfg := ai.NewConfig(ai.WithEmbeddingProvider(ai.ProviderJina), ai.WithEmbeddingHost(ai.DefaultJinaHost))
	_, err := NewEmbedder(cfg)
	assert.Error(t, err)
}
