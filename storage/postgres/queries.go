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


package postgres

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var articleColumns = []string{
	"id", "title", "reporter", "summary", "content", "publish_date", "source_url", "source_site",
	"title_embedding", "summary_embedding", "fingerprint", "title_embedded_fingerprint", "summary_embedded_fingerprint",
	"created_at", "updated_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// embeddingColumn maps a single embedding field to its column.
func embeddingColumn(field core.Field) (string, error) {
	switch field {
	case core.FieldTitle:
		return "title_embedding", nil
	case core.FieldSummary:
		return "summary_embedding", nil
	}
	return "", fmt.Errorf("%w: %w", storage.ErrInvalidQuery, core.ErrInvalidField)
}

// embeddedFingerprintColumn maps a single embedding field to the column
// recording the fingerprint its embedding was computed from.
func embeddedFingerprintColumn(field core.Field) string {
	if field == core.FieldTitle {
		return "title_embedded_fingerprint"
	}
	return "summary_embedded_fingerprint"
}

// textColumn maps a single embedding field to the column its embedding is computed from.
func textColumn(field core.Field) string {
	if field == core.FieldTitle {
		return "title"
	}
	return "summary"
}

func selectArticles() sq.SelectBuilder {
	return psql.Select(articleColumns...).From(tableName)
}

func applyFilter(b sq.SelectBuilder, f core.Filter) sq.SelectBuilder {
	if f.SourceSite != "" {
		b = b.Where(sq.Eq{"source_site": f.SourceSite})
	}
	if !f.DateFrom.IsZero() {
		b = b.Where(sq.GtOrEq{"publish_date": core.TruncateDate(f.DateFrom)})
	}
	if !f.DateTo.IsZero() {
		b = b.Where(sq.LtOrEq{"publish_date": core.TruncateDate(f.DateTo)})
	}
	return b
}

// upsertQuery inserts a draft or, on a source_url conflict, overwrites the
// text fields when the fingerprint differs. No row comes back for an
// unchanged article; xmax = 0 marks a fresh insert.
func upsertQuery(d *core.ArticleDraft) sq.InsertBuilder {
	return psql.Insert(tableName).
		Columns("title", "reporter", "summary", "content", "publish_date", "source_url", "source_site", "fingerprint").
		Values(d.Title, d.Reporter, d.Summary, d.Content, core.TruncateDate(d.PublishDate), d.SourceURL, d.SourceSite, d.Fingerprint()).
		Suffix(`ON CONFLICT (source_url) DO UPDATE SET
	title = EXCLUDED.title,
	reporter = EXCLUDED.reporter,
	summary = EXCLUDED.summary,
	content = EXCLUDED.content,
	publish_date = EXCLUDED.publish_date,
	source_site = EXCLUDED.source_site,
	fingerprint = EXCLUDED.fingerprint,
	updated_at = now()
WHERE ` + tableName + `.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint
RETURNING ` + strings.Join(articleColumns, ", ") + `, (xmax = 0) AS inserted`)
}

func candidateQuery(q storage.CandidateQuery) (sq.SelectBuilder, error) {
	if len(q.Fields) == 0 {
		return sq.SelectBuilder{}, fmt.Errorf("%w: no fields requested", storage.ErrInvalidQuery)
	}
	var anyField sq.Or
	for _, field := range q.Fields {
		col, err := embeddingColumn(field)
		if err != nil {
			return sq.SelectBuilder{}, err
		}
		needs := sq.And{sq.NotEq{textColumn(field): ""}}
		if !q.Force {
			missing := sq.Or{sq.Eq{col: nil}}
			if q.IncludeStale {
				missing = append(missing, sq.And{
					sq.NotEq{col: nil},
					sq.Expr(embeddedFingerprintColumn(field) + " <> fingerprint"),
				})
			}
			needs = append(needs, missing)
		}
		anyField = append(anyField, needs)
	}

	b := selectArticles().Where(anyField).OrderBy("id")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b, nil
}

// nearestQuery ranks exactly: ordering on distance then id keeps ties
// deterministic across backends.
func nearestQuery(q storage.NearestQuery) (sq.SelectBuilder, error) {
	vec := pgvector.NewVector(q.Vector)

	var b sq.SelectBuilder
	switch q.Field {
	case core.FieldTitle, core.FieldSummary:
		col, _ := embeddingColumn(q.Field)
		b = selectArticles().
			Column(sq.Expr(col+" <=> ? AS distance", vec)).
			Where(sq.NotEq{col: nil})
	case core.FieldBoth:
		combined := "((title_embedding <=> ?) + (summary_embedding <=> ?)) / 2"
		if q.Combine == core.CombineMin {
			combined = "LEAST(title_embedding <=> ?, summary_embedding <=> ?)"
		}
		b = selectArticles().
			Column(sq.Expr(combined+" AS distance", vec, vec)).
			Where(sq.NotEq{"title_embedding": nil, "summary_embedding": nil})
	default:
		return sq.SelectBuilder{}, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, core.ErrInvalidField)
	}

	b = applyFilter(b, q.Filter).OrderBy("distance", "id")
	if q.TopK > 0 {
		b = b.Limit(uint64(q.TopK))
	}
	return b, nil
}

func keywordQuery(q storage.KeywordQuery) (sq.SelectBuilder, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return sq.SelectBuilder{}, fmt.Errorf("%w: empty keyword", storage.ErrInvalidQuery)
	}
	if _, err := core.ParseField(string(q.Field)); err != nil {
		return sq.SelectBuilder{}, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}
	pattern := "%" + likeEscaper.Replace(text) + "%"

	var match sq.Or
	for _, field := range q.Field.Fields() {
		match = append(match, sq.ILike{textColumn(field): pattern})
	}

	b := applyFilter(selectArticles().Where(match), q.Filter).OrderBy("publish_date DESC", "id DESC")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b, nil
}

// staleCondition matches rows with an embedding computed from older text.
const staleCondition = "(title_embedding IS NOT NULL AND title_embedded_fingerprint <> fingerprint)" +
	" OR (summary_embedding IS NOT NULL AND summary_embedded_fingerprint <> fingerprint)"

func statsQuery() sq.SelectBuilder {
	return psql.Select(
		"count(*)",
		"count(*) FILTER (WHERE title_embedding IS NOT NULL)",
		"count(*) FILTER (WHERE summary_embedding IS NOT NULL)",
		"count(*) FILTER (WHERE title_embedding IS NOT NULL AND summary_embedding IS NOT NULL)",
		"count(*) FILTER (WHERE "+staleCondition+")",
		"min(publish_date)",
		"max(publish_date)",
	).From(tableName)
}

func sourceCountsQuery() sq.SelectBuilder {
	return psql.Select("source_site", "count(*)").
		From(tableName).
		GroupBy("source_site").
		OrderBy("source_site")
}

func setEmbeddingQuery(id core.ID, field core.Field, vector []float32, fingerprint string) (sq.UpdateBuilder, error) {
	col, err := embeddingColumn(field)
	if err != nil {
		return sq.UpdateBuilder{}, err
	}
	return psql.Update(tableName).
		Set(col, pgvector.NewVector(vector)).
		Set(embeddedFingerprintColumn(field), fingerprint).
		Where(sq.Eq{"id": int64(id), "fingerprint": fingerprint}), nil
}
