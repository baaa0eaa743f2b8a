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


package search

import "errors"

var (
	// ErrRepositoryRequired is returned when an article repository is not provided.
	ErrRepositoryRequired = errors.New("article repository required")

	// ErrEmbedderRequired is returned when no embedder is provided and keyword fallback is off.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensions indicates the embedder and the store disagree on vector size.
	ErrDimensions = errors.New("embedder dimensions do not match the store")

	// ErrEmptyQuery is returned for a blank query text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrInvalidQuery indicates unusable query parameters.
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrQueryEmbedding indicates the query text could not be embedded.
	// The search fails; there is no cached query vector to fall back to.
	ErrQueryEmbedding = errors.New("query embedding failed")
)
