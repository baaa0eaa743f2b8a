package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the direct HTTP fetcher.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond paces requests to each host. Zero disables pacing.
	RequestsPerSecond float64
	MaxBodyBytes      int64
}

// DefaultHTTPConfig returns a polite configuration: one request per second per host.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:           30 * time.Second,
		UserAgent:         "newsindex/1.0 (+https://github.com/poiesic/newsindex)",
		RequestsPerSecond: 1,
		MaxBodyBytes:      5 << 20,
	}
}

// HTTPFetcher downloads pages itself, selects regions with goquery and
// renders them as markdown. When no selector matches, the readability
// article text is used instead.
type HTTPFetcher struct {
	config   HTTPConfig
	client   *http.Client
	logger   *slog.Logger
	markdown *converter.Converter

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ Fetcher = (*HTTPFetcher)(nil)

func newHTTPFetcher(config HTTPConfig, opts ...Option) *HTTPFetcher {
	defaults := DefaultHTTPConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}

	o := applyOptions(opts)
	return &HTTPFetcher{
		config:   config,
		client:   o.client,
		logger:   o.logger,
		markdown: newMarkdownConverter(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// NewHTTPFetcher creates a direct HTTP fetcher.
func NewHTTPFetcher(config HTTPConfig, opts ...Option) Fetcher {
	return newHTTPFetcher(config, opts...)
}

// Fetch downloads rawURL and renders the regions matched by selectors.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, selectors []string) (*Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := f.wait(ctx, target.Host); err != nil {
		return nil, err
	}

	body, final, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{URL: rawURL}
	page.Byline = strings.TrimSpace(doc.Find(`meta[name="author"]`).AttrOr("content", ""))

	sel := doc.Find("body")
	if len(selectors) > 0 {
		sel = doc.Find(strings.Join(selectors, ", "))
	}
	page.Content, err = renderSelection(f.markdown, sel, final)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}

	if page.Content == "" {
		article, err := readability.FromReader(bytes.NewReader(body), final)
		if err == nil {
			page.Content = tidy(article.TextContent)
			if page.Byline == "" {
				page.Byline = strings.TrimSpace(article.Byline)
			}
		}
		f.logger.Debug("no selector matched, used readability", "url", rawURL, "chars", len(page.Content))
	}
	if page.Content == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, rawURL)
	}
	return page, nil
}

// download returns the response body and the final URL after redirects.
func (f *HTTPFetcher) download(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%w: HTTP %d for %s", ErrStatus, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return body, resp.Request.URL, nil
}

// wait blocks on the host's limiter.
func (f *HTTPFetcher) wait(ctx context.Context, host string) error {
	if f.config.RequestsPerSecond <= 0 {
		return ctx.Err()
	}
	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.config.RequestsPerSecond), 1)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()
	return limiter.Wait(ctx)
}
