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


// Package search ranks stored articles against a text query.
//
// The Searcher embeds the query with the query task hint, then asks the
// store for the nearest articles by cosine distance over the title
// embedding, the summary embedding or both. Source site and date filters
// are applied before ranking, so TopK counts only matching articles.
// Articles without the needed embedding never rank.
//
// With field "both" the two distances are averaged by default; pass
// WithCombinePolicy(core.CombineMin) to rank by the closer field instead.
// Equal scores are ordered by ascending article ID.
//
// A query embedding failure fails the search with ErrQueryEmbedding. A
// Searcher built without an embedder can answer with case-insensitive
// keyword matching when WithKeywordFallback is set.
package search
