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


package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultFirecrawlURL is the address of a self-hosted Firecrawl instance.
const DefaultFirecrawlURL = "http://localhost:3002"

// FirecrawlConfig configures the Firecrawl fetcher.
type FirecrawlConfig struct {
	BaseURL string
	// APIKey is sent as a bearer token when set. Self-hosted instances need none.
	APIKey  string
	Timeout time.Duration
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	IncludeTags     []string `json:"includeTags,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Author string `json:"author"`
		} `json:"metadata"`
	} `json:"data"`
}

// FirecrawlFetcher delegates rendering to a Firecrawl scrape service,
// which returns the selected regions as markdown.
type FirecrawlFetcher struct {
	config FirecrawlConfig
	client *http.Client
	logger *slog.Logger
}

var _ Fetcher = (*FirecrawlFetcher)(nil)

// NewFirecrawlFetcher creates a Firecrawl-backed fetcher.
func NewFirecrawlFetcher(config FirecrawlConfig, opts ...Option) Fetcher {
	if config.BaseURL == "" {
		config.BaseURL = DefaultFirecrawlURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	o := applyOptions(opts)
	return &FirecrawlFetcher{config: config, client: o.client, logger: o.logger}
}

// Fetch scrapes rawURL through Firecrawl, keeping only the tags in selectors.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, rawURL string, selectors []string) (*Page, error) {
	payload, err := json.Marshal(scrapeRequest{
		URL:         rawURL,
		Formats:     []string{"markdown"},
		IncludeTags: selectors,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.BaseURL+"/v2/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firecrawl: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var parsed scrapeResponse
	jsonErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if jsonErr == nil && parsed.Error != "" {
			detail = parsed.Error
		}
		return nil, fmt.Errorf("%w: HTTP %d from firecrawl for %s: %s", ErrStatus, resp.StatusCode, rawURL, detail)
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("decode firecrawl response: %w", jsonErr)
	}

	content := strings.TrimSpace(parsed.Data.Markdown)
	if content == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, rawURL)
	}
	f.logger.Debug("scraped page", "url", rawURL, "chars", len(content))
	return &Page{URL: rawURL, Content: content, Byline: parsed.Data.Metadata.Author}, nil
}
