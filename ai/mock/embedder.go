package mock

import (
	"context"
	"math"
	"sync"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
)

// DefaultDimensions is the vector size produced when none is configured.
const DefaultDimensions = 8

// EmbedCall records one invocation of the mock embedder.
type EmbedCall struct {
	Task  ai.TaskHint
	Texts []string
}

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for concurrent use.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, task ai.TaskHint, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error)

	dims  int
	mu    sync.Mutex
	calls []EmbedCall
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dims: DefaultDimensions}
}

// WithDimensions sets the size of generated vectors.
func (m *MockEmbedder) WithDimensions(dims int) *MockEmbedder {
	m.dims = dims
	return m
}

// Dimensions returns the configured vector size.
func (m *MockEmbedder) Dimensions() int {
	return m.dims
}

// EmbedText generates a deterministic embedding based on the text.
// The task hint is recorded but does not change the vector, so a query
// equal to a stored passage lands on the same point.
func (m *MockEmbedder) EmbedText(ctx context.Context, task ai.TaskHint, text string) ([]float32, error) {
	m.record(task, []string{text})

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, task, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Vector(text, m.dims), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
	m.record(task, texts)

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, task, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = Vector(text, m.dims)
	}
	return embeddings, nil
}

func (m *MockEmbedder) record(task ai.TaskHint, texts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmbedCall{Task: task, Texts: append([]string(nil), texts...)})
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded invocations in call order.
func (m *MockEmbedder) Calls() []EmbedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmbedCall(nil), m.calls...)
}

// Reset clears the recorded calls and custom functions.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// Vector creates a deterministic unit vector from text.
// The same text always produces the same vector.
func Vector(text string, dim int) []float32 {
	seed := uint64(core.IDFromContent(text))

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407 // LCG constants
		vector[i] = float32(seed>>40)/float32(1<<24) - 0.5
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
