// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Summarizer,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, ai.TaskQuery, "test")
//
//	// Custom behavior injection
//	mockEmbedder := mock.NewMockEmbedder().WithDimensions(4)
//	mockEmbedder.EmbedTextsFunc = func(ctx context.Context, task ai.TaskHint, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
//	// Inspect recorded calls
//	for _, c := range mockEmbedder.Calls() {
//	    fmt.Println(c.Task, len(c.Texts))
//	}
//
// # Default Behavior
//
//   - MockEmbedder: deterministic unit vectors seeded by the text, identical
//     for passage and query hints
//   - MockSummarizer: byline and bullets taken from the leading lines of the text
//   - MockProvider: aggregates mock embedder and summarizer
package mock
