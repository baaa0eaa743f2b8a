// Package jina implements ai.Embedder against the Jina embeddings API.
//
// Jina models take the task hint as a request field, so no text prefixes
// are involved: passages are sent with task "retrieval.passage" and
// queries with "retrieval.query".
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/newsindex/ai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// ErrAPI indicates the Jina API answered with a non-success status.
var ErrAPI = errors.New("jina api error")

type embeddingRequest struct {
	Model        string   `json:"model"`
	Input        []string `json:"input"`
	Task         string   `json:"task"`
	Dimensions   int      `json:"dimensions"`
	EncodingType string   `json:"encoding_type"`
	LateChunking bool     `json:"late_chunking"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail"`
}

// Embedder implements ai.Embedder for jina-embeddings-v3 style models.
type Embedder struct {
	endpoint string
	model    string
	apiKey   string
	dims     int
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option customizes an Embedder.
type Option func(*Embedder)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) {
		e.client = c
	}
}

func newEmbedder(config *ai.Config, opts ...Option) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	e := &Embedder{
		endpoint: strings.TrimSuffix(config.EmbeddingHost, "/") + "/embeddings",
		model:    config.EmbeddingModel,
		apiKey:   config.EmbeddingAPIKey,
		dims:     config.Dimensions,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: ai.NewLimiter(config.RequestsPerMinute),
		logger:  slog.Default().With("component", "jina-embedder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewEmbedder creates a Jina embedder from the configuration.
// The config must select the jina provider and carry an API key.
func NewEmbedder(config *ai.Config, opts ...Option) (ai.Embedder, error) {
	return newEmbedder(config, opts...)
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, task ai.TaskHint, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, task, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds all texts in one API request.
func (e *Embedder) EmbedTexts(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
	if !task.Valid() {
		return nil, fmt.Errorf("%w: %q", ai.ErrInvalidTask, task)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embeddingRequest{
		Model:        e.model,
		Input:        texts,
		Task:         string(task),
		Dimensions:   e.dims,
		EncodingType: "float",
		LateChunking: false,
	})
	if err != nil {
		return nil, err
	}

	if err := ai.Wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	e.logger.Debug("sending embedding request", "task", task, "count", len(texts))
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("embedding request failed", "count", len(texts), "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}

	var decoded embeddingResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(raw, &decoded)
		detail := decoded.Detail
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, detail)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}

	// Results carry their input index and may arrive out of order
	slices.SortFunc(decoded.Data, func(a, b embeddingData) int {
		return a.Index - b.Index
	})
	vectors := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		vectors[i] = d.Embedding
	}
	if err := ai.CheckVectors(vectors, len(texts), e.dims); err != nil {
		e.logger.Error("embedding response rejected", "count", len(texts), "err", err)
		return nil, err
	}

	e.logger.Debug("embedding request done", "count", len(texts), "tokens", decoded.Usage.TotalTokens)
	return vectors, nil
}
