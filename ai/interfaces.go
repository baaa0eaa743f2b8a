package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The task hint tells the model whether the text is a stored passage or a search query.
	EmbedText(ctx context.Context, task TaskHint, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in one call.
	// The returned slice contains embeddings in the same order as the input texts.
	// The call fails as a whole; there is no partial success.
	EmbedTexts(ctx context.Context, task TaskHint, texts []string) ([][]float32, error)

	// Dimensions returns the configured dimensionality of the produced vectors.
	Dimensions() int
}

// Summarizer extracts the reporter byline and a bullet summary from article text.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Summarize analyzes raw article text and returns the extracted fields.
	// Callers treat an error as a degraded result, never as fatal.
	Summarize(ctx context.Context, content string) (*ArticleSummary, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Summarizer returns the article summarization service.
	Summarizer() Summarizer

	// Close releases resources held by the provider and its services.
	Close() error
}
