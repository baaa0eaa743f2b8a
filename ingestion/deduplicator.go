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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
)

// UpsertStats counts the outcome of every draft handed to Upsert.
// Total always equals the sum of the other fields.
type UpsertStats struct {
	Total    int
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
	Invalid  int
}

// Add accumulates another batch's counts.
func (s *UpsertStats) Add(o UpsertStats) {
	s.Total += o.Total
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.Invalid += o.Invalid
}

func (s *UpsertStats) record(outcome core.UpsertOutcome) {
	switch outcome {
	case core.OutcomeInserted:
		s.Inserted++
	case core.OutcomeUpdated:
		s.Updated++
	case core.OutcomeSkipped:
		s.Skipped++
	}
}

func (s UpsertStats) String() string {
	return fmt.Sprintf("total=%d inserted=%d updated=%d skipped=%d failed=%d invalid=%d",
		s.Total, s.Inserted, s.Updated, s.Skipped, s.Failed, s.Invalid)
}

// Deduplicator writes drafts to the store, keyed on source URL.
type Deduplicator struct {
	repo   storage.ArticleRepository
	logger *slog.Logger
}

// NewDeduplicator creates the write path over repo. A nil logger uses the default.
func NewDeduplicator(repo storage.ArticleRepository, logger *slog.Logger) (*Deduplicator, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{repo: repo, logger: logger.With("component", "deduplicator")}, nil
}

// Upsert persists drafts one by one. A non-empty sourceSite overrides each
// draft's site tag; the drafts themselves are not modified.
//
// A failing draft is counted and the next one is tried. The returned error
// is non-nil only when the store is closed or ctx is done; the drafts not
// attempted by then are counted as failed.
func (d *Deduplicator) Upsert(ctx context.Context, drafts []*core.ArticleDraft, sourceSite string) (UpsertStats, error) {
	stats := UpsertStats{Total: len(drafts)}
	logger := d.logger.With("source", sourceSite)

	for i, draft := range drafts {
		if err := ctx.Err(); err != nil {
			stats.Failed += len(drafts) - i
			return stats, err
		}

		if draft != nil && sourceSite != "" && draft.SourceSite != sourceSite {
			tagged := *draft
			tagged.SourceSite = sourceSite
			draft = &tagged
		}
		if err := core.ValidateDraft(draft); err != nil {
			stats.Invalid++
			logger.Warn("discarding invalid draft", "index", i, "err", err)
			continue
		}

		article, outcome, err := d.repo.UpsertArticle(ctx, draft)
		switch {
		case errors.Is(err, storage.ErrStorageClosed):
			stats.Failed += len(drafts) - i
			return stats, err
		case errors.Is(err, core.ErrInvalidDraft):
			stats.Invalid++
			logger.Warn("store rejected draft", "url", draft.SourceURL, "err", err)
		case err != nil:
			stats.Failed++
			logger.Warn("upsert failed", "url", draft.SourceURL, "err", err)
		default:
			stats.record(outcome)
			logger.Debug("upserted article", "url", draft.SourceURL, "id", article.Id, "outcome", outcome)
		}
	}

	logger.Info("upsert finished", "stats", stats.String())
	return stats, nil
}
