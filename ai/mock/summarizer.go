package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
)

// MockSummarizer is a test double for ai.Summarizer.
// It allows custom behavior injection via function fields.
type MockSummarizer struct {
	// SummarizeFunc is called by Summarize if set.
	// If nil, uses default line based extraction.
	SummarizeFunc func(ctx context.Context, content string) (*ai.ArticleSummary, error)

	callCount atomic.Int64
}

// NewMockSummarizer creates a mock summarizer with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockSummarizer().
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Summarize derives a summary without a model.
// Default behavior: a first line containing "報導" is the reporter and the
// next non-empty lines, up to three, become the bullet points.
func (m *MockSummarizer) Summarize(ctx context.Context, content string) (*ai.ArticleSummary, error) {
	m.callCount.Add(1)

	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, content)
	}

	var out ai.ArticleSummary
	var points []string
	for _, line := range strings.Split(core.Truncate(content, 1500), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if out.Reporter == "" && len(points) == 0 && strings.Contains(line, "報導") {
			out.Reporter = line
			continue
		}
		points = append(points, "- "+line)
		if len(points) == 3 {
			break
		}
	}
	out.Summary = strings.Join(points, "\n")
	return &out, nil
}

// CallCount returns the number of times Summarize was called.
func (m *MockSummarizer) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockSummarizer) Reset() {
	m.callCount.Store(0)
	m.SummarizeFunc = nil
}
