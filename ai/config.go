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


package ai

import (
	"errors"
	"strings"
	"time"
)

// Embedding provider kinds.
const (
	// ProviderOpenAI talks to any OpenAI-compatible /v1/embeddings endpoint
	// (Ollama, vLLM, LocalAI, OpenAI itself).
	ProviderOpenAI = "openai"
	// ProviderJina talks to the Jina embeddings API, which accepts task hints natively.
	ProviderJina = "jina"
)

// DefaultJinaHost is the public Jina embeddings API.
const DefaultJinaHost = "https://api.jina.ai/v1"

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingProvider selects the embedding client: "openai" or "jina".
	EmbeddingProvider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "bge-m3", "jina-embeddings-v3"
	EmbeddingModel string

	// EmbeddingAPIKey authenticates against the embedding service.
	// Local OpenAI-compatible servers accept any value.
	EmbeddingAPIKey string

	// Dimensions is the corpus-wide embedding dimensionality.
	// Vectors of any other length are rejected.
	Dimensions int

	// PassagePrefix and QueryPrefix express task hints for OpenAI-compatible
	// models that expect them in the text, e.g. "passage: " and "query: ".
	PassagePrefix string
	QueryPrefix   string

	// SummarizerHost is the base URL for the chat completion service.
	// Defaults to EmbeddingHost when empty.
	SummarizerHost string

	// SummarizerModel is the chat model used to extract reporter and summary.
	// Example: "qwen3:4b", "gpt-4o-mini"
	SummarizerModel string

	// SummarizerAPIKey authenticates against the chat completion service.
	SummarizerAPIKey string

	// RequestsPerMinute caps calls per client. Zero disables pacing.
	RequestsPerMinute int

	// Timeout bounds a single remote call.
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingProvider selects the embedding client kind.
func WithEmbeddingProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingProvider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithSummarizerHost sets the chat completion service host URL.
func WithSummarizerHost(host string) ConfigOption {
	return func(c *Config) {
		c.SummarizerHost = host
	}
}

// WithHost sets both embedding and summarizer hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.SummarizerHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithSummarizerModel sets the chat model identifier.
func WithSummarizerModel(model string) ConfigOption {
	return func(c *Config) {
		c.SummarizerModel = model
	}
}

// WithEmbeddingAPIKey sets the embedding service credential.
func WithEmbeddingAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
	}
}

// WithSummarizerAPIKey sets the chat service credential.
func WithSummarizerAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.SummarizerAPIKey = key
	}
}

// WithDimensions sets the corpus embedding dimensionality.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithTaskPrefixes sets the text prefixes used for passage and query task hints.
func WithTaskPrefixes(passage, query string) ConfigOption {
	return func(c *Config) {
		c.PassagePrefix = passage
		c.QueryPrefix = query
	}
}

// WithRequestsPerMinute caps the request rate of every client.
func WithRequestsPerMinute(rpm int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerMinute = rpm
	}
}

// WithTimeout bounds a single remote call.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and summarizer use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingHost:     defaultHost,
		SummarizerHost:    defaultHost,
		EmbeddingModel:    "bge-m3",
		SummarizerModel:   "qwen3:4b",
		Dimensions:        1024,
		Timeout:           60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingProvider(ProviderJina),
//	    WithEmbeddingHost(DefaultJinaHost),
//	    WithEmbeddingModel("jina-embeddings-v3"),
//	    WithEmbeddingAPIKey(os.Getenv("JINA_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingProvider = strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = ProviderOpenAI
	}
	if c.SummarizerHost == "" {
		c.SummarizerHost = c.EmbeddingHost
	}
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.SummarizerHost = withV1(c.SummarizerHost)
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	// Remove trailing slash if present before adding /v1
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingProvider != ProviderOpenAI && c.EmbeddingProvider != ProviderJina {
		return errors.New("ai config: EmbeddingProvider must be openai or jina")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingProvider == ProviderJina && c.EmbeddingAPIKey == "" {
		return errors.New("ai config: EmbeddingAPIKey is required for the jina provider")
	}
	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be greater than 0")
	}
	if c.SummarizerModel == "" {
		return errors.New("ai config: SummarizerModel is required")
	}
	if c.RequestsPerMinute < 0 {
		return errors.New("ai config: RequestsPerMinute cannot be negative")
	}
	if c.Timeout < 0 {
		return errors.New("ai config: Timeout cannot be negative")
	}
	return nil
}
