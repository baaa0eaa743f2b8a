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


package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/newsindex"
	"github.com/poiesic/newsindex/ai"
	"github.com/urfave/cli/v2"
)

// Exit statuses seen by the invoking scheduler.
const (
	exitFatal   = 1
	exitPartial = 2
)

// newProvider builds the AI provider from flags. Tests replace it.
var newProvider = newsindex.NewProvider

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitFatal
}

func newApp() *cli.App {
	return &cli.App{
		Name:   "newsindex",
		Usage:  "Scrape news sites, embed articles and search them by meaning",
		Flags:  globalFlags(),
		Before: setupLogger,
		// main owns the exit status.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			scrapeCommand(),
			importCommand(),
			embedCommand(),
			searchCommand(),
			articlesCommand(),
			statsCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Article store: badger or postgres",
			Value:   newsindex.StoreBadger,
			EnvVars: []string{"NEWSINDEX_STORE"},
		},
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to BadgerDB database directory",
			Value:   "./newsindex_db",
			EnvVars: []string{"NEWSINDEX_DB"},
		},
		&cli.StringFlag{
			Name:    "postgres-url",
			Usage:   "PostgreSQL connection URL for the postgres store",
			EnvVars: []string{"NEWSINDEX_POSTGRES_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "dimensions",
			Usage:   "Embedding dimensionality of the corpus",
			Value:   1024,
			EnvVars: []string{"NEWSINDEX_DIMENSIONS"},
		},
		&cli.StringFlag{
			Name:    "embedding-provider",
			Usage:   "Embedding client: openai (any OpenAI-compatible server) or jina",
			Value:   ai.ProviderOpenAI,
			EnvVars: []string{"NEWSINDEX_EMBEDDING_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL (defaults to the Jina API for the jina provider)",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"NEWSINDEX_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "bge-m3",
			EnvVars: []string{"NEWSINDEX_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "embedding-api-key",
			Usage:   "Embedding service API key",
			EnvVars: []string{"JINA_API_KEY", "NEWSINDEX_EMBEDDING_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "passage-prefix",
			Usage:   "Text prefix marking stored passages for OpenAI-compatible embedders",
			EnvVars: []string{"NEWSINDEX_PASSAGE_PREFIX"},
		},
		&cli.StringFlag{
			Name:    "query-prefix",
			Usage:   "Text prefix marking search queries for OpenAI-compatible embedders",
			EnvVars: []string{"NEWSINDEX_QUERY_PREFIX"},
		},
		&cli.StringFlag{
			Name:    "summarizer-host",
			Usage:   "Chat completion service host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"NEWSINDEX_SUMMARIZER_HOST"},
		},
		&cli.StringFlag{
			Name:    "summarizer-model",
			Usage:   "Chat model extracting reporter and summary",
			Value:   "qwen3:4b",
			EnvVars: []string{"NEWSINDEX_SUMMARIZER_MODEL"},
		},
		&cli.StringFlag{
			Name:    "summarizer-api-key",
			Usage:   "Chat completion service API key",
			EnvVars: []string{"OPENAI_API_KEY", "NEWSINDEX_SUMMARIZER_API_KEY"},
		},
		&cli.IntFlag{
			Name:  "requests-per-minute",
			Usage: "Cap on AI requests per minute per client (0 disables pacing)",
		},
		&cli.DurationFlag{
			Name:  "ai-timeout",
			Usage: "Timeout of a single AI request",
			Value: 60 * time.Second,
		},
	}
}

// aiConfig assembles the AI configuration from the global flags.
func aiConfig(c *cli.Context) *ai.Config {
	config := ai.NewConfig(
		ai.WithEmbeddingProvider(c.String("embedding-provider")),
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithEmbeddingAPIKey(c.String("embedding-api-key")),
		ai.WithTaskPrefixes(c.String("passage-prefix"), c.String("query-prefix")),
		ai.WithSummarizerHost(c.String("summarizer-host")),
		ai.WithSummarizerModel(c.String("summarizer-model")),
		ai.WithSummarizerAPIKey(c.String("summarizer-api-key")),
		ai.WithDimensions(c.Int("dimensions")),
		ai.WithRequestsPerMinute(c.Int("requests-per-minute")),
		ai.WithTimeout(c.Duration("ai-timeout")),
	)
	if strings.EqualFold(config.EmbeddingProvider, ai.ProviderJina) && !c.IsSet("embedding-host") {
		config.EmbeddingHost = ai.DefaultJinaHost
	}
	return config
}

// openIndex opens the configured store with an AI provider built from flags.
func openIndex(c *cli.Context) (*newsindex.Index, error) {
	provider, err := newProvider(aiConfig(c))
	if err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	store := newsindex.StoreConfig{
		Kind:        c.String("store"),
		Path:        c.String("db"),
		PostgresURL: c.String("postgres-url"),
	}
	idx, err := newsindex.Open(c.Context, store,
		newsindex.WithProvider(provider),
		newsindex.WithLogger(slog.Default()))
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", store.Kind, err)
	}
	return idx, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
