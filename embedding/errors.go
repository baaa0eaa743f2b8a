package embedding

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrRepositoryRequired is returned when an article repository is not provided.
	ErrRepositoryRequired = errors.New("article repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensions indicates the embedder and the store disagree on vector size.
	ErrDimensions = errors.New("embedder dimensions do not match the store")

	// ErrInvalidConfig indicates a batcher configuration failed validation.
	ErrInvalidConfig = errors.New("invalid embedding configuration")
)
