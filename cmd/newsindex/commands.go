package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/embedding"
	"github.com/poiesic/newsindex/extraction"
	"github.com/poiesic/newsindex/fetch"
	"github.com/poiesic/newsindex/ingestion"
	"github.com/poiesic/newsindex/search"
	"github.com/poiesic/newsindex/source"
	"github.com/poiesic/newsindex/storage"
	"github.com/urfave/cli/v2"
)

func scrapeCommand() *cli.Command {
	return &cli.Command{
		Name:   "scrape",
		Usage:  "Extract one day's articles from the configured sites and store them",
		Action: scrapeAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sources",
				Aliases: []string{"s"},
				Usage:   "Path to the sources YAML file",
				Value:   "sources.yaml",
			},
			&cli.StringSliceFlag{
				Name:  "site",
				Usage: "Only scrape the named site (repeatable)",
			},
			&cli.StringFlag{
				Name:  "date",
				Usage: "Target date as YYYY/MM/DD or YYYY-MM-DD (default today)",
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Number of list pages scanned per site",
				Value: extraction.DefaultPages,
			},
			&cli.IntFlag{
				Name:  "max-articles",
				Usage: "Articles accepted per site (negative for no cap)",
				Value: extraction.DefaultMaxArticles,
			},
			&cli.BoolFlag{
				Name:  "json-only",
				Usage: "Write drafts to JSON files instead of the store",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory for JSON draft files",
				Value: ".",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Sites scraped concurrently",
				Value: 2,
			},
			&cli.StringFlag{
				Name:  "fetcher",
				Usage: "Page fetcher: http or firecrawl",
				Value: "http",
			},
			&cli.Float64Flag{
				Name:  "requests-per-second",
				Usage: "Per-host request rate of the http fetcher (0 disables pacing)",
				Value: 1,
			},
			&cli.StringFlag{
				Name:    "firecrawl-url",
				Usage:   "Firecrawl service URL",
				Value:   fetch.DefaultFirecrawlURL,
				EnvVars: []string{"FIRECRAWL_URL"},
			},
			&cli.StringFlag{
				Name:    "firecrawl-api-key",
				Usage:   "Firecrawl API key",
				EnvVars: []string{"FIRECRAWL_API_KEY"},
			},
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store the drafts of JSON files written by scrape --json-only",
		ArgsUsage: "FILE...",
		Action:    importAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "site",
				Usage: "Source site tag for every draft (default taken from each file name)",
			},
		},
	}
}

func embedCommand() *cli.Command {
	return &cli.Command{
		Name:   "embed",
		Usage:  "Generate missing title and summary embeddings",
		Action: embedAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of articles per embedding request",
				Value: embedding.DefaultConfig().BatchSize,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of articles to process (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Recompute embeddings that already exist",
			},
			&cli.BoolFlag{
				Name:  "stale",
				Usage: "Also recompute embeddings whose article text changed",
			},
			&cli.StringSliceFlag{
				Name:  "field",
				Usage: "Field to embed: title, summary or both (repeatable)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Batches in flight at once",
				Value: embedding.DefaultConfig().Workers,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per embedding request",
				Value: embedding.DefaultConfig().MaxRetries,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: embedding.DefaultConfig().RetryDelay,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N articles",
				Value: embedding.DefaultConfig().ReportInterval,
			},
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the articles closest in meaning to a query",
		ArgsUsage: "QUERY",
		Action:    searchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "field",
				Usage: "Embedding to rank on: title, summary or both",
				Value: string(core.FieldTitle),
			},
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Number of results",
				Value:   search.DefaultTopK,
			},
			&cli.StringFlag{
				Name:  "combine",
				Usage: "How title and summary distances merge for field both: average or min",
				Value: core.CombineAverage.String(),
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Only search articles of this site",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Earliest publish date, inclusive",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Latest publish date, inclusive",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
		},
	}
}

func articlesCommand() *cli.Command {
	return &cli.Command{
		Name:   "articles",
		Usage:  "List stored articles of one day or one site",
		Action: articlesAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "date",
				Usage: "Publish date as YYYY/MM/DD or YYYY-MM-DD",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source site tag",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of articles listed for a site",
				Value: 20,
			},
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show corpus size, embedding coverage and per-source counts",
		Action: statsAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print statistics as JSON",
			},
		},
	}
}

func scrapeAction(c *cli.Context) error {
	date, err := parseDateFlag(c.String("date"), time.Now())
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	sources, err := source.Load(c.String("sources"))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	sources, err = source.Select(sources, c.StringSlice("site")...)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	fetcher, err := newFetcher(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	pipeline, closeFn, err := buildPipeline(c, fetcher)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer closeFn()

	req := extraction.Request{
		TargetDate:  date,
		Pages:       c.Int("pages"),
		MaxArticles: c.Int("max-articles"),
	}
	report, err := pipeline.Run(c.Context, sources, req)
	if report != nil {
		printReport(c.App.Writer, report)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("scrape failed: %v", err), exitFatal)
	}
	if report.Partial() {
		return cli.Exit("scrape finished with failures", exitPartial)
	}
	return nil
}

// buildPipeline wires the scrape pipeline. JSON-only runs need the
// summarizer but no store.
func buildPipeline(c *cli.Context, fetcher fetch.Fetcher) (*ingestion.Pipeline, func(), error) {
	opts := []ingestion.Option{
		ingestion.WithPoolSize(c.Int("workers")),
		ingestion.WithLogger(slog.Default()),
	}

	if c.Bool("json-only") {
		provider, err := newProvider(aiConfig(c))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid AI configuration: %w", err)
		}
		engine := extraction.NewEngine(fetcher, extraction.WithSummarizer(provider.Summarizer()))
		pipeline, err := ingestion.NewPipeline(engine, nil, append(opts, ingestion.WithJSONOnly(c.String("output-dir")))...)
		if err != nil {
			provider.Close()
			return nil, nil, err
		}
		return pipeline, func() {
			pipeline.Release()
			provider.Close()
		}, nil
	}

	idx, err := openIndex(c)
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("output-dir") {
		opts = append(opts, ingestion.WithJSONOutput(c.String("output-dir")))
	}
	pipeline, err := idx.NewPipeline(idx.NewEngine(fetcher), opts...)
	if err != nil {
		idx.Close()
		return nil, nil, err
	}
	return pipeline, func() {
		pipeline.Release()
		idx.Close()
	}, nil
}

func newFetcher(c *cli.Context) (fetch.Fetcher, error) {
	switch c.String("fetcher") {
	case "http":
		config := fetch.DefaultHTTPConfig()
		config.RequestsPerSecond = c.Float64("requests-per-second")
		return fetch.NewHTTPFetcher(config), nil
	case "firecrawl":
		return fetch.NewFirecrawlFetcher(fetch.FirecrawlConfig{
			BaseURL: c.String("firecrawl-url"),
			APIKey:  c.String("firecrawl-api-key"),
		}), nil
	}
	return nil, fmt.Errorf("unknown fetcher %q: must be http or firecrawl", c.String("fetcher"))
}

func printReport(w io.Writer, report *ingestion.Report) {
	for _, site := range report.Sites {
		fmt.Fprintf(w, "%s: %s\n", site.Site, site.Extraction.String())
		fmt.Fprintf(w, "  upsert: %s\n", site.Upsert.String())
		if site.OutputFile != "" {
			fmt.Fprintf(w, "  written: %s\n", site.OutputFile)
		}
		if site.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", site.Err)
		}
	}
	fmt.Fprintf(w, "total: %s\n", report.Extraction.String())
	fmt.Fprintf(w, "  upsert: %s\n", report.Upsert.String())
}

func importAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("import needs at least one drafts file", exitFatal)
	}
	idx, err := openIndex(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer idx.Close()

	dedup, err := idx.NewDeduplicator()
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	var total ingestion.UpsertStats
	for _, path := range c.Args().Slice() {
		site := c.String("site")
		if site == "" {
			site = ingestion.SiteFromFileName(path)
		}
		drafts, err := ingestion.LoadDraftsJSON(path, site)
		if err != nil {
			return cli.Exit(err.Error(), exitFatal)
		}
		stats, err := dedup.Upsert(c.Context, drafts, c.String("site"))
		total.Add(stats)
		fmt.Fprintf(c.App.Writer, "%s: %s\n", path, stats.String())
		if err != nil {
			return cli.Exit(fmt.Sprintf("import failed: %v", err), exitFatal)
		}
	}
	fmt.Fprintf(c.App.Writer, "total: %s\n", total.String())

	if total.Failed > 0 || total.Invalid > 0 {
		return cli.Exit("import finished with failures", exitPartial)
	}
	return nil
}

func embedAction(c *cli.Context) error {
	fields, err := parseFields(c.StringSlice("field"))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	config := embedding.Config{
		BatchSize:      c.Int("batch-size"),
		Workers:        c.Int("workers"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		ReportInterval: c.Int("report-interval"),
	}
	config.Normalize()
	if err := config.Validate(); err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	idx, err := openIndex(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer idx.Close()

	batcher, err := idx.NewBatcher(
		embedding.WithConfig(config),
		embedding.WithProgress(c.App.ErrWriter),
		embedding.WithLogger(slog.Default()))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	stats, err := batcher.Run(c.Context, embedding.RunOptions{
		Fields:       fields,
		Limit:        c.Int("limit"),
		Force:        c.Bool("force"),
		IncludeStale: c.Bool("stale"),
	})
	if stats != nil {
		fmt.Fprintln(c.App.Writer, stats.String())
	}
	switch {
	case errors.Is(err, context.Canceled):
		return cli.Exit("embedding interrupted", exitPartial)
	case err != nil:
		return cli.Exit(fmt.Sprintf("embedding failed: %v", err), exitFatal)
	case stats.Failed > 0:
		return cli.Exit("embedding finished with failures", exitPartial)
	}
	return nil
}

func searchAction(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	field, err := core.ParseField(c.String("field"))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	policy, err := parseCombine(c.String("combine"))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	filter := core.Filter{SourceSite: c.String("source")}
	if filter.DateFrom, err = parseOptionalDate(c.String("from")); err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	if filter.DateTo, err = parseOptionalDate(c.String("to")); err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	idx, err := openIndex(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer idx.Close()

	searcher, err := idx.NewSearcher(search.WithCombinePolicy(policy), search.WithLogger(slog.Default()))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	results, err := searcher.Search(c.Context, search.Query{
		Text:   text,
		Field:  field,
		TopK:   c.Int("top-k"),
		Filter: filter,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("search failed: %v", err), exitFatal)
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, toHits(results))
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching articles")
		return nil
	}
	for i, r := range results {
		a := r.Article
		fmt.Fprintf(c.App.Writer, "%d. [%.4f] %s\n", i+1, r.Similarity, a.Title)
		fmt.Fprintf(c.App.Writer, "   %s %s %s\n", core.FormatDate(a.PublishDate), a.SourceSite, a.SourceURL)
	}
	return nil
}

// hit is the JSON shape of one search result.
type hit struct {
	Rank       int     `json:"rank"`
	ID         uint64  `json:"id"`
	Title      string  `json:"title"`
	Reporter   string  `json:"reporter,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Date       string  `json:"date"`
	URL        string  `json:"url"`
	Site       string  `json:"site"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

func toHits(results []*core.SearchResult) []hit {
	hits := make([]hit, len(results))
	for i, r := range results {
		a := r.Article
		hits[i] = hit{
			Rank:       i + 1,
			ID:         uint64(a.Id),
			Title:      a.Title,
			Reporter:   a.Reporter,
			Summary:    a.Summary,
			Date:       core.FormatDate(a.PublishDate),
			URL:        a.SourceURL,
			Site:       a.SourceSite,
			Distance:   r.Distance,
			Similarity: r.Similarity,
		}
	}
	return hits
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func articlesAction(c *cli.Context) error {
	dateFlag, site := c.String("date"), c.String("source")
	if (dateFlag == "") == (site == "") {
		return cli.Exit("articles needs exactly one of --date or --source", exitFatal)
	}

	idx, err := openIndex(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer idx.Close()

	var articles []*core.Article
	if dateFlag != "" {
		date, perr := core.ParseDate(dateFlag)
		if perr != nil {
			return cli.Exit(perr.Error(), exitFatal)
		}
		articles, err = idx.Repository().GetArticlesByDate(c.Context, date)
	} else {
		articles, err = idx.Repository().GetArticlesBySource(c.Context, site, c.Int("limit"))
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	for _, a := range articles {
		state := "-"
		switch {
		case a.Stale():
			state = "stale"
		case len(a.TitleEmbedding) > 0 && len(a.SummaryEmbedding) > 0:
			state = "indexed"
		case len(a.TitleEmbedding) > 0 || len(a.SummaryEmbedding) > 0:
			state = "partial"
		}
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.Id, core.FormatDate(a.PublishDate), a.SourceSite, state, a.Title, a.SourceURL)
	}
	fmt.Fprintf(c.App.Writer, "%d articles\n", len(articles))
	return nil
}

// parseDateFlag parses a date flag, defaulting to now's calendar date.
func parseDateFlag(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return core.TruncateDate(now), nil
	}
	return core.ParseDate(s)
}

func parseOptionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return core.ParseDate(s)
}

func parseFields(values []string) ([]core.Field, error) {
	var fields []core.Field
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			f, err := core.ParseField(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func parseCombine(s string) (core.CombinePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "average", "avg":
		return core.CombineAverage, nil
	case "min":
		return core.CombineMin, nil
	}
	return 0, fmt.Errorf("unknown combine policy %q: must be average or min", s)
}

// corpusReport is the JSON shape of the stats command.
type corpusReport struct {
	TotalArticles    int           `json:"total_articles"`
	EmbeddedArticles int           `json:"embedded_articles"`
	TitleEmbedded    int           `json:"title_embedded"`
	SummaryEmbedded  int           `json:"summary_embedded"`
	StaleArticles    int           `json:"stale_articles"`
	Coverage         string        `json:"embedding_coverage"`
	DateRange        dateRange     `json:"date_range"`
	Sources          []sourceCount `json:"sources"`
}

type dateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type sourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

func toCorpusReport(s *storage.CorpusStats) corpusReport {
	report := corpusReport{
		TotalArticles:    s.Articles,
		EmbeddedArticles: s.Embedded,
		TitleEmbedded:    s.TitleEmbedded,
		SummaryEmbedded:  s.SummaryEmbedded,
		StaleArticles:    s.Stale,
		Coverage:         fmt.Sprintf("%.1f%%", s.Coverage()),
		Sources:          make([]sourceCount, len(s.Sources)),
	}
	if s.Articles > 0 {
		report.DateRange = dateRange{From: core.FormatDate(s.EarliestDate), To: core.FormatDate(s.LatestDate)}
	}
	for i, sc := range s.Sources {
		report.Sources[i] = sourceCount{Source: sc.Site, Count: sc.Articles}
	}
	return report
}

func statsAction(c *cli.Context) error {
	idx, err := openIndex(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer idx.Close()

	stats, err := idx.Repository().Stats(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	report := toCorpusReport(stats)
	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, report); err != nil {
			return cli.Exit(err.Error(), exitFatal)
		}
		return nil
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Articles:           %d\n", report.TotalArticles)
	fmt.Fprintf(w, "Fully embedded:     %d (%s)\n", report.EmbeddedArticles, report.Coverage)
	fmt.Fprintf(w, "Title embeddings:   %d\n", report.TitleEmbedded)
	fmt.Fprintf(w, "Summary embeddings: %d\n", report.SummaryEmbedded)
	fmt.Fprintf(w, "Stale:              %d\n", report.StaleArticles)
	if report.DateRange.From != "" {
		fmt.Fprintf(w, "Date range:         %s - %s\n", report.DateRange.From, report.DateRange.To)
	}
	for _, sc := range report.Sources {
		fmt.Fprintf(w, "  %s\t%d\n", sc.Source, sc.Count)
	}
	return nil
}
