// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extraction

import (
	"context"
	"iter"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/fetch"
	"github.com/poiesic/newsindex/source"
)

const (
	// DefaultPages is the number of list pages scanned per run.
	DefaultPages = 10
	// DefaultMaxArticles caps the accepted drafts per source and run.
	DefaultMaxArticles = 15

	maxTitleRunes    = 500
	maxReporterRunes = 100
)

// Request selects what one extraction run collects.
type Request struct {
	// TargetDate is the calendar day articles must belong to.
	TargetDate time.Time
	// Pages is the number of list pages to scan. Zero means DefaultPages.
	Pages int
	// MaxArticles stops the run once this many drafts were accepted.
	// Zero means DefaultMaxArticles; a negative value means no cap.
	MaxArticles int
}

func (r Request) pages() int {
	if r.Pages <= 0 {
		return DefaultPages
	}
	return r.Pages
}

func (r Request) maxArticles() int {
	if r.MaxArticles == 0 {
		return DefaultMaxArticles
	}
	return r.MaxArticles
}

// Engine turns list and article pages into drafts using a source's rules.
// It is safe for concurrent use across sources.
type Engine struct {
	fetcher    fetch.Fetcher
	summarizer ai.Summarizer
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSummarizer sets the collaborator that extracts reporter and summary.
// Without one, drafts carry only the byline the fetcher found.
func WithSummarizer(s ai.Summarizer) Option {
	return func(e *Engine) { e.summarizer = s }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an extraction engine.
func NewEngine(fetcher fetch.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		logger:  slog.Default().With("component", "extraction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract lazily yields the drafts of one source. Drafts come in list
// page order. Every candidate lands in exactly one stats bucket; stats
// must not be shared between concurrent runs. The sequence is not
// restartable: iterating again fetches the pages again.
func (e *Engine) Extract(ctx context.Context, src *source.Source, req Request, stats *Stats) iter.Seq[*core.ArticleDraft] {
	if stats == nil {
		stats = &Stats{}
	}
	return func(yield func(*core.ArticleDraft) bool) {
		logger := e.logger.With("source", src.Name(), "date", src.FormatDate(req.TargetDate))

		dateRe, err := src.DateRegexp(req.TargetDate)
		if err != nil {
			logger.Error("date pattern does not compile", "err", err)
			return
		}

		limit := req.maxArticles()
		seen := make(map[string]bool)
		accepted := 0

		for page := 1; page <= req.pages(); page++ {
			if ctx.Err() != nil {
				return
			}
			pageURL := src.PageURL(page)
			stats.Pages++
			list, err := e.fetcher.Fetch(ctx, pageURL, src.ListSelectors())
			if err != nil {
				stats.PageFailures++
				logger.Warn("list page fetch failed", "url", pageURL, "err", err)
				continue
			}

			links := src.Links(list.Content)
			logger.Debug("list page scanned", "page", page, "links", len(links))
			for _, link := range links {
				if ctx.Err() != nil {
					return
				}
				stats.Candidates++
				if seen[link.URL] {
					stats.Duplicates++
					continue
				}
				seen[link.URL] = true
				if !src.Accepts(link.Block) {
					stats.Filtered++
					continue
				}

				draft, ok := e.draft(ctx, logger, src, link, dateRe, req.TargetDate, stats)
				if !ok {
					continue
				}
				stats.Accepted++
				accepted++
				if !yield(draft) {
					return
				}
				if limit > 0 && accepted >= limit {
					logger.Debug("article cap reached", "accepted", accepted)
					return
				}
			}
		}
	}
}

// Collect runs Extract to completion.
func (e *Engine) Collect(ctx context.Context, src *source.Source, req Request) ([]*core.ArticleDraft, Stats) {
	var stats Stats
	drafts := slices.Collect(e.Extract(ctx, src, req, &stats))
	return drafts, stats
}

// draft fetches one article page and assembles its draft.
func (e *Engine) draft(ctx context.Context, logger *slog.Logger, src *source.Source, link source.Link, dateRe *regexp.Regexp, date time.Time, stats *Stats) (*core.ArticleDraft, bool) {
	page, err := e.fetcher.Fetch(ctx, link.URL, src.ArticleSelectors())
	if err != nil {
		stats.FetchFailures++
		logger.Warn("article fetch failed", "url", link.URL, "err", err)
		return nil, false
	}
	if !dateRe.MatchString(page.Content) {
		stats.OffDate++
		logger.Debug("article not from target date", "url", link.URL)
		return nil, false
	}

	draft := &core.ArticleDraft{
		Title:       core.Truncate(cleanTitle(link.Title), maxTitleRunes),
		Content:     page.Content,
		PublishDate: core.TruncateDate(date),
		SourceURL:   link.URL,
		SourceSite:  src.Name(),
	}

	degraded := false
	if e.summarizer != nil {
		summary, err := e.summarizer.Summarize(ctx, page.Content)
		if err != nil {
			degraded = true
			logger.Warn("summary extraction failed, keeping article without it", "url", link.URL, "err", err)
		} else {
			draft.Reporter = summary.Reporter
			draft.Summary = summary.Summary
		}
	}
	if draft.Reporter == "" {
		draft.Reporter = page.Byline
	}
	draft.Reporter = core.Truncate(strings.TrimSpace(draft.Reporter), maxReporterRunes)

	if err := core.ValidateDraft(draft); err != nil {
		stats.Invalid++
		logger.Warn("discarding invalid draft", "url", link.URL, "err", err)
		return nil, false
	}
	if degraded {
		stats.Degraded++
	}
	return draft, true
}

// cleanTitle drops markdown emphasis and collapses whitespace.
func cleanTitle(s string) string {
	s = strings.NewReplacer("**", "", "__", "", "\\", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
