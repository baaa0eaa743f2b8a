// Package postgres stores articles in PostgreSQL using the pgvector extension.
//
// Each embedding field has its own vector(N) column with an HNSW index over
// cosine distance. Nearest-neighbor queries apply the source and date
// filters in the WHERE clause and order by the <=> operator, so filtered
// rows never compete for the top-K slots.
//
//	repo, err := postgres.Open(ctx, "postgres://localhost/news", 1024)
//	if err != nil {
//		return err
//	}
//	defer repo.Close()
package postgres
