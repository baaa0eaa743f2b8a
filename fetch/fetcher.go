package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrStatus indicates a non-2xx response.
	ErrStatus = errors.New("unexpected status")

	// ErrEmptyPage indicates a page rendered to no text.
	ErrEmptyPage = errors.New("empty page")
)

// Page is the rendered text of one fetched URL.
type Page struct {
	URL string
	// Content is markdown-style text: block elements on their own lines,
	// links rendered as [text](absolute-url).
	Content string
	// Byline is the author line when the fetcher could detect one.
	Byline string
}

// Fetcher retrieves a page and renders the regions matched by selectors.
// An empty selector list renders the whole page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, selectors []string) (*Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, selectors []string) (*Page, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, selectors []string) (*Page, error) {
	return f(ctx, url, selectors)
}

// Option configures a fetcher.
type Option func(*options)

type options struct {
	client *http.Client
	logger *slog.Logger
}

// WithHTTPClient replaces the default client, whose transport records an
// OpenTelemetry span per request.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "fetch")
	}
	return o
}
