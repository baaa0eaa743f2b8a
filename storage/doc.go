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


// Package storage provides the storage abstraction layer for newsindex.
//
// This package defines the ArticleRepository interface that decouples the
// persisted article store and its vector queries from the ingestion, embedding
// and search logic. Two backends implement it:
//
//   - storage/badger: embedded key-value store, exhaustive cosine ranking
//   - storage/postgres: PostgreSQL with pgvector HNSW indexes
//
// # Constructor Return Type Pattern
//
// Public constructors return the interface to keep callers independent of
// the backend:
//
//	repo, err := badger.NewRepository(path, 1024)  // returns storage.ArticleRepository
//
// Internal package constructors (newArticleRepository, newBackend, etc.) may
// return concrete types since they're only used within the implementation package.
//
// # Invariants
//
//   - source_url is unique; UpsertArticle is the only way to create rows and
//     resolves concurrent first sightings of one URL to a single insert.
//   - An embedding is either absent or exactly Dimensions() long.
//   - Text overwrites never touch embeddings. Embedding writes are
//     compare-and-set on the article fingerprint, so an embedding computed
//     from superseded text is rejected with ErrStaleWrite.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repo, err := badger.NewMemoryRepository(8)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
