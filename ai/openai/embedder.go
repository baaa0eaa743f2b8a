package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/newsindex/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// Task hints are expressed as text prefixes since the wire protocol has no task field.
type Embedder struct {
	embedder      embeddings.Embedder
	dims          int
	passagePrefix string
	queryPrefix   string
	timeout       time.Duration
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token
	token := config.EmbeddingAPIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return newEmbedderWithClient(config, client)
}

// newEmbedderWithClient wraps any langchaingo embedding client.
func newEmbedderWithClient(config *ai.Config, client embeddings.EmbedderClient) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:      embedder,
		dims:          config.Dimensions,
		passagePrefix: config.PassagePrefix,
		queryPrefix:   config.QueryPrefix,
		timeout:       config.Timeout,
		limiter:       ai.NewLimiter(config.RequestsPerMinute),
		logger:        slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, task ai.TaskHint, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "task", task, "length", len(text))

	vectors, err := e.EmbedTexts(ctx, task, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
	if !task.Valid() {
		return nil, fmt.Errorf("%w: %q", ai.ErrInvalidTask, task)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "task", task, "count", len(texts))

	prefix := e.passagePrefix
	if task == ai.TaskQuery {
		prefix = e.queryPrefix
	}
	inputs := texts
	if prefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = prefix + t
		}
	}

	if err := ai.Wait(ctx, e.limiter); err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if err := ai.CheckVectors(vectors, len(texts), e.dims); err != nil {
		e.logger.Error("embedding response rejected", "count", len(texts), "err", err)
		return nil, err
	}
	return vectors, nil
}
