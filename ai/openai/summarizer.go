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


package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// maxReporterRunes matches the storage column width for the byline.
const maxReporterRunes = 100

// Summarizer implements ai.Summarizer using OpenAI-compatible chat APIs.
type Summarizer struct {
	client  llms.Model
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// summaryResponse is the wrapper structure for the LLM's JSON response.
type summaryResponse struct {
	Reporter string   `json:"reporter"`
	Summary  []string `json:"summary"`
}

// newSummarizer is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newSummarizer(config *ai.Config) (*Summarizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token
	token := config.SummarizerAPIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.SummarizerHost),
		openai.WithToken(token),
		openai.WithModel(config.SummarizerModel),
	)
	if err != nil {
		return nil, err
	}
	return newSummarizerWithModel(config, client), nil
}

func newSummarizerWithModel(config *ai.Config, client llms.Model) *Summarizer {
	return &Summarizer{
		client:  client,
		timeout: config.Timeout,
		limiter: ai.NewLimiter(config.RequestsPerMinute),
		logger:  slog.Default().With("component", "openai-summarizer"),
	}
}

// NewSummarizer creates a new summarizer using the provided configuration.
//
// Returns ai.Summarizer interface to enforce abstraction.
func NewSummarizer(config *ai.Config) (ai.Summarizer, error) {
	return newSummarizer(config)
}

// Summarize extracts the reporter byline and a bullet summary from article text.
// Only the first 1500 runes of the content are sent to the model.
func (s *Summarizer) Summarize(ctx context.Context, content string) (*ai.ArticleSummary, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return &ai.ArticleSummary{}, nil
	}

	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSystemPrompt()),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(core.Truncate(content, summaryInputLimit)),
			},
		},
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// Try up to 3 times in case of malformed JSON
	var parsed *summaryResponse
	var lastErr error
	var lastText string
	for attempt := 0; attempt < 3; attempt++ {
		if err := ai.Wait(ctx, s.limiter); err != nil {
			return nil, err
		}
		response, err := s.client.GenerateContent(ctx, messages, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			s.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			s.logger.Debug("no choices returned from model")
			return nil, ai.ErrEmptyResponse
		}

		lastText = stripCodeFence(response.Choices[0].Content)
		responseText := repairJSON(lastText)

		var result summaryResponse
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			s.logger.Warn("error parsing summarizer response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		parsed = &result
		lastErr = nil
		break
	}

	if parsed == nil {
		// Models that ignore JSON mode tend to answer in the labelled line format.
		if summary, ok := parseLabelledLines(lastText); ok {
			s.logger.Debug("recovered summary from labelled lines")
			return summary, nil
		}
		s.logger.Error("failed to parse summarizer response after retries", "err", lastErr)
		return nil, lastErr
	}

	summary := &ai.ArticleSummary{
		Reporter: core.Truncate(strings.TrimSpace(parsed.Reporter), maxReporterRunes),
		Summary:  formatBullets(parsed.Summary),
	}
	s.logger.Debug("summarized article",
		"reporter", summary.Reporter,
		"bullets", len(parsed.Summary))
	return summary, nil
}
