package postgres

import (
	"context"
	"fmt"
)

const (
	tableName = "news_articles"

	hnswM              = 16
	hnswEfConstruction = 64
)

// schemaStatements returns the idempotent DDL for a corpus of the given dimensionality.
func schemaStatements(dims int) []string {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	title VARCHAR(500) NOT NULL,
	reporter VARCHAR(100) NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	publish_date DATE NOT NULL,
	source_url VARCHAR(1000) NOT NULL UNIQUE,
	source_site VARCHAR(50) NOT NULL DEFAULT '',
	title_embedding vector(%d),
	summary_embedding vector(%d),
	fingerprint TEXT NOT NULL,
	title_embedded_fingerprint TEXT NOT NULL DEFAULT '',
	summary_embedded_fingerprint TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, tableName, dims, dims),
	}
	// Tables created before per-field fingerprints lack these columns.
	for _, col := range []string{"title_embedded_fingerprint", "summary_embedded_fingerprint"} {
		stmts = append(stmts, fmt.Sprintf(
			`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT NOT NULL DEFAULT ''`, tableName, col))
	}
	for _, col := range []string{"title", "publish_date", "source_site"} {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)`, tableName, col, tableName, col))
	}
	for _, col := range []string{"title_embedding", "summary_embedding"} {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s USING hnsw (%s vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			tableName, col, tableName, col, hnswM, hnswEfConstruction))
	}
	return stmts
}

// Migrate creates the pgvector extension, the articles table and its indexes.
// It is safe to run against an already migrated database.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(r.dims) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	r.logger.Debug("schema migrated", "table", tableName, "dimensions", r.dims)
	return nil
}
