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


// Package newsindex wires a news article store to the AI services that
// summarize and embed it. An Index hands out the extraction engine, the
// ingestion pipeline, the embedding batcher and the searcher, all bound
// to the same store.
package newsindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/ai/jina"
	"github.com/poiesic/newsindex/ai/openai"
	"github.com/poiesic/newsindex/embedding"
	"github.com/poiesic/newsindex/extraction"
	"github.com/poiesic/newsindex/fetch"
	"github.com/poiesic/newsindex/ingestion"
	"github.com/poiesic/newsindex/search"
	"github.com/poiesic/newsindex/storage"
	"github.com/poiesic/newsindex/storage/badger"
	"github.com/poiesic/newsindex/storage/postgres"
)

// Store kinds accepted by StoreConfig.Kind.
const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

var (
	// ErrUnknownStore is returned for a StoreConfig.Kind other than badger or postgres.
	ErrUnknownStore = errors.New("store must be badger or postgres")

	// ErrPostgresURL is returned when the postgres store is selected without a URL.
	ErrPostgresURL = errors.New("postgres store needs a connection URL")
)

// StoreConfig selects and locates the article store.
type StoreConfig struct {
	// Kind is StoreBadger (default) or StorePostgres.
	Kind string
	// Path is the badger database directory. Empty opens an in-memory store.
	Path string
	// PostgresURL is the connection string for StorePostgres.
	PostgresURL string
}

// Index owns an article store and the AI provider bound to it.
type Index struct {
	repo     storage.ArticleRepository
	provider ai.AIProvider
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	aiConfig  *ai.Config
	provider  ai.AIProvider
	logger    *slog.Logger
	pgOptions []postgres.Option
}

// WithAIConfig sets the AI service configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = config
	}
}

// WithProvider uses an already built AI provider instead of creating one
// from the AI configuration. The store takes the provider's dimensions.
// The Index closes the provider only once Open succeeded.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPostgresOptions passes options through to postgres.Open.
func WithPostgresOptions(opts ...postgres.Option) Option {
	return func(o *options) {
		o.pgOptions = append(o.pgOptions, opts...)
	}
}

// Open creates the AI provider, then opens the store with the provider's
// embedding dimensions.
func Open(ctx context.Context, store StoreConfig, opts ...Option) (*Index, error) {
	// Apply options
	o := &options{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = NewProvider(o.aiConfig)
		if err != nil {
			return nil, err
		}
	}
	dims := provider.Embedder().Dimensions()

	repo, err := openStore(ctx, store, dims, o)
	if err != nil {
		if o.provider == nil {
			provider.Close()
		}
		return nil, err
	}

	return &Index{
		repo:     repo,
		provider: provider,
		logger:   o.logger.With("component", "newsindex"),
	}, nil
}

// NewProvider builds the AI provider described by config: a Jina or
// OpenAI-compatible embedder next to the chat based summarizer.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.EmbeddingProvider != ai.ProviderJina {
		return openai.NewProvider(config)
	}
	embedder, err := jina.NewEmbedder(config)
	if err != nil {
		return nil, err
	}
	return openai.NewProvider(config, openai.WithEmbedder(embedder))
}

func openStore(ctx context.Context, store StoreConfig, dims int, o *options) (storage.ArticleRepository, error) {
	switch strings.ToLower(strings.TrimSpace(store.Kind)) {
	case "", StoreBadger:
		if store.Path == "" {
			return badger.NewMemoryRepository(dims)
		}
		return badger.NewRepository(store.Path, dims)
	case StorePostgres:
		if store.PostgresURL == "" {
			return nil, ErrPostgresURL
		}
		pgOpts := append([]postgres.Option{postgres.WithLogger(o.logger.With("component", "postgres"))}, o.pgOptions...)
		return postgres.Open(ctx, store.PostgresURL, dims, pgOpts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, store.Kind)
}

// Close closes the provider and the store.
func (idx *Index) Close() error {
	// Close AI provider first
	if err := idx.provider.Close(); err != nil {
		idx.logger.Error("error closing AI provider", "err", err)
	}

	if err := idx.repo.Close(); err != nil {
		idx.logger.Error("error closing article store", "err", err)
		return err
	}
	return nil
}

func (idx *Index) Repository() storage.ArticleRepository {
	return idx.repo
}

func (idx *Index) Provider() ai.AIProvider {
	return idx.provider
}

// NewEngine creates an extraction engine that summarizes with the index's provider.
func (idx *Index) NewEngine(fetcher fetch.Fetcher, opts ...extraction.Option) *extraction.Engine {
	opts = append([]extraction.Option{extraction.WithSummarizer(idx.provider.Summarizer())}, opts...)
	return extraction.NewEngine(fetcher, opts...)
}

func (idx *Index) NewPipeline(engine *extraction.Engine, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(engine, idx.repo, opts...)
}

func (idx *Index) NewDeduplicator() (*ingestion.Deduplicator, error) {
	return ingestion.NewDeduplicator(idx.repo, idx.logger)
}

func (idx *Index) NewBatcher(opts ...embedding.Option) (*embedding.Batcher, error) {
	return embedding.NewBatcher(idx.repo, idx.provider.Embedder(), opts...)
}

func (idx *Index) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(idx.repo, idx.provider.Embedder(), opts...)
}
