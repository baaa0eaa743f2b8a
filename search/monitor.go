package search

import (
	"log/slog"
	"time"

	"github.com/poiesic/newsindex/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query Query)
	AfterQueryEmbedding(vector []float32)
	AfterRanking(results []*core.SearchResult)
	Finish(results []*core.SearchResult, err error)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                          {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)        {}
func (n *noopMonitor) AfterRanking(_ []*core.SearchResult)    {}
func (n *noopMonitor) Finish(_ []*core.SearchResult, _ error) {}

// LogMonitor logs each search stage with its elapsed time at debug level.
type LogMonitor struct {
	logger *slog.Logger
	start  time.Time
}

var _ SearchMonitor = (*LogMonitor)(nil)

// NewLogMonitor creates a monitor writing to logger.
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger}
}

func (m *LogMonitor) Start(q Query) {
	m.start = time.Now()
	m.logger.Debug("search started", "text", q.Text, "field", q.Field, "topK", q.TopK,
		"source", q.Filter.SourceSite)
}

func (m *LogMonitor) AfterQueryEmbedding(vector []float32) {
	m.logger.Debug("query embedded", "dims", len(vector), "elapsed", time.Since(m.start))
}

func (m *LogMonitor) AfterRanking(results []*core.SearchResult) {
	m.logger.Debug("articles ranked", "hits", len(results), "elapsed", time.Since(m.start))
}

func (m *LogMonitor) Finish(results []*core.SearchResult, err error) {
	if err != nil {
		m.logger.Debug("search failed", "err", err, "elapsed", time.Since(m.start))
		return
	}
	m.logger.Debug("search finished", "hits", len(results), "elapsed", time.Since(m.start))
}
