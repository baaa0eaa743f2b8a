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


// Package ai provides abstractions for the model services used by newsindex.
//
// Two capabilities are needed:
//
//   - Embedder: turns titles, summaries and queries into vectors. Every call
//     carries a TaskHint so asymmetric models embed stored passages and
//     search queries differently while keeping them comparable.
//   - Summarizer: extracts the reporter byline and a short bullet summary
//     from raw article text during extraction.
//
// AIProvider aggregates both for initialization and shutdown.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embeddings and chat via langchaingo
//     (Ollama, vLLM, LocalAI or OpenAI itself)
//   - ai/jina: the Jina embeddings API, which accepts task hints natively
//   - ai/mock: deterministic test doubles
//
// Public constructors return interface types. Mock constructors return
// concrete types so tests can inject behavior and inspect calls.
//
// # Usage Example
//
//	cfg := ai.DefaultConfig()
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, ai.TaskQuery, "總統府 記者會")
//	sum, err := provider.Summarizer().Summarize(ctx, articleText)
package ai
