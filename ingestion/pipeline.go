package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/extraction"
	"github.com/poiesic/newsindex/source"
	"github.com/poiesic/newsindex/storage"
)

// Pipeline scrapes source sites concurrently, one worker per site,
// and hands each site's drafts to the Deduplicator or a JSON file.
type Pipeline struct {
	engine    *extraction.Engine
	dedup     *Deduplicator
	pool      *ants.Pool
	outputDir string // JSON output directory, empty when not writing files
	jsonOnly  bool
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many sites are scraped at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithJSONOutput also writes every site's drafts to dir.
func WithJSONOutput(dir string) Option {
	return func(p *Pipeline) error {
		p.outputDir = dir
		return nil
	}
}

// WithJSONOnly writes drafts to dir instead of the store.
// The repository passed to NewPipeline may then be nil.
func WithJSONOnly(dir string) Option {
	return func(p *Pipeline) error {
		p.outputDir = dir
		p.jsonOnly = true
		return nil
	}
}

// NewPipeline creates a scraping pipeline.
func NewPipeline(engine *extraction.Engine, repo storage.ArticleRepository, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		engine: engine,
		pool:   pool,
		logger: slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	if !p.jsonOnly {
		dedup, err := NewDeduplicator(repo, p.logger)
		if err != nil {
			p.Release()
			return nil, err
		}
		p.dedup = dedup
	}
	return p, nil
}

// SiteReport is the outcome of one site's run.
type SiteReport struct {
	Site       string
	Extraction extraction.Stats
	Upsert     UpsertStats
	OutputFile string
	// Err is set when the site's drafts could not be persisted or written.
	Err error
}

// Report aggregates a run over all sites.
type Report struct {
	Sites      []SiteReport
	Extraction extraction.Stats
	Upsert     UpsertStats
}

// Partial reports whether any page, article or site failed during the run.
func (r *Report) Partial() bool {
	for _, site := range r.Sites {
		if site.Err != nil {
			return true
		}
	}
	e := r.Extraction
	return e.PageFailures > 0 || e.FetchFailures > 0 || e.Invalid > 0 ||
		r.Upsert.Failed > 0 || r.Upsert.Invalid > 0
}

// Run scrapes every source for the requested day and waits for all sites
// to finish. Site failures are reported per site. The returned error is
// reserved for failures that doom the whole run: no sources, a closed
// worker pool or an unusable store.
func (p *Pipeline) Run(ctx context.Context, sources []*source.Source, req extraction.Request) (*Report, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	reports := make([]SiteReport, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			reports[i] = p.runSite(ctx, src, req)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit %s: %w", src.Name(), err)
		}
	}
	wg.Wait()

	report := &Report{Sites: reports}
	var fatal error
	for _, site := range reports {
		report.Extraction.Add(site.Extraction)
		report.Upsert.Add(site.Upsert)
		if errors.Is(site.Err, storage.ErrStorageClosed) {
			fatal = site.Err
		}
	}
	p.logger.Info("run finished",
		"sites", len(sources),
		"extraction", report.Extraction.String(),
		"upsert", report.Upsert.String())
	return report, fatal
}

func (p *Pipeline) runSite(ctx context.Context, src *source.Source, req extraction.Request) SiteReport {
	report := SiteReport{Site: src.Name()}
	logger := p.logger.With("source", src.Name())

	var drafts []*core.ArticleDraft
	for draft := range p.engine.Extract(ctx, src, req, &report.Extraction) {
		drafts = append(drafts, draft)
	}
	logger.Info("extraction finished", "stats", report.Extraction.String())

	if p.outputDir != "" {
		path, err := WriteDraftsJSON(p.outputDir, src.Name(), req.TargetDate, drafts)
		if err != nil {
			logger.Error("writing drafts failed", "err", err)
			report.Err = err
		}
		report.OutputFile = path
	}
	if p.jsonOnly {
		return report
	}

	stats, err := p.dedup.Upsert(ctx, drafts, src.Name())
	report.Upsert = stats
	if err != nil {
		logger.Error("upsert aborted", "err", err)
		report.Err = errors.Join(report.Err, err)
	}
	return report
}

// Import upserts drafts loaded from a JSON-only run. It fails when the
// pipeline was built in JSON-only mode.
func (p *Pipeline) Import(ctx context.Context, drafts []*core.ArticleDraft, sourceSite string) (UpsertStats, error) {
	if p.dedup == nil {
		return UpsertStats{}, ErrRepositoryRequired
	}
	return p.dedup.Upsert(ctx, drafts, sourceSite)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
