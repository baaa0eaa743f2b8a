package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
	"github.com/poiesic/newsindex/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/poiesic/newsindex/embedding"

// RunOptions selects what one run embeds.
type RunOptions struct {
	// Fields to embed. Empty means title and summary; core.FieldBoth expands to both.
	Fields []core.Field
	// BatchSize overrides Config.BatchSize when positive.
	BatchSize int
	// Limit caps the number of selected articles. Zero means no cap.
	Limit int
	// Force re-embeds every article with non-empty source text.
	Force bool
	// IncludeStale also re-embeds fields whose embedding was computed from text that has since changed.
	IncludeStale bool
}

// Batcher computes missing embeddings in batches and writes them back.
type Batcher struct {
	repo     storage.ArticleRepository
	embedder ai.Embedder
	config   Config
	progress io.Writer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithConfig replaces the default configuration. Zero fields take defaults.
func WithConfig(config Config) Option {
	return func(b *Batcher) { b.config = config }
}

// WithProgress writes a progress line to w while running.
func WithProgress(w io.Writer) Option {
	return func(b *Batcher) { b.progress = w }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) { b.logger = logger }
}

// NewBatcher creates an embedding batcher. The embedder must produce
// vectors of the store's dimensionality.
func NewBatcher(repo storage.ArticleRepository, embedder ai.Embedder, opts ...Option) (*Batcher, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Batcher{
		repo:     repo,
		embedder: embedder,
		config:   DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "embedding")

	b.config.Normalize()
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if embedder.Dimensions() != repo.Dimensions() {
		return nil, fmt.Errorf("%w: embedder %d, store %d", ErrDimensions, embedder.Dimensions(), repo.Dimensions())
	}
	return b, nil
}

// Run selects candidate articles in ascending ID order, splits them into
// batches and embeds each batch on a bounded worker pool.
//
// A failed batch is counted and the run continues. Cancellation stops new
// batches from starting; a batch already calling the provider finishes and
// writes its results. Articles never started are counted as skipped and
// the context error is returned with the stats. Any other returned error
// means the run could not start.
func (b *Batcher) Run(ctx context.Context, opts RunOptions) (*Stats, error) {
	fields, err := resolveFields(opts.Fields)
	if err != nil {
		return nil, err
	}
	batchSize := b.config.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	query := storage.CandidateQuery{
		Fields:       fields,
		Force:        opts.Force,
		IncludeStale: opts.IncludeStale,
		Limit:        opts.Limit,
	}
	candidates, err := b.repo.ListEmbeddingCandidates(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	stats := newStats(fields)
	stats.Total = len(candidates)
	if len(candidates) == 0 {
		fmt.Fprintf(b.progress, "Nothing to embed (0 articles)\n")
		return stats, nil
	}

	pool, err := ants.NewPool(b.config.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	fmt.Fprintf(b.progress, "Embedding %d articles (fields: %v, batch size: %d, workers: %d)\n",
		len(candidates), fields, batchSize, b.config.Workers)
	tracker := NewProgressTracker(b.progress, len(candidates), b.config.ReportInterval)
	tracker.Start()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		runErr error
	)
	skip := func(n int) {
		mu.Lock()
		stats.Skipped += n
		mu.Unlock()
	}

	for start, n := 0, 1; start < len(candidates); start, n = start+batchSize, n+1 {
		if err := ctx.Err(); err != nil {
			skip(len(candidates) - start)
			runErr = err
			break
		}
		batch := candidates[start:min(start+batchSize, len(candidates))]

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				skip(len(batch))
				return
			}
			result := b.processBatch(ctx, n, batch, fields, query)
			mu.Lock()
			stats.merge(result)
			mu.Unlock()
			tracker.Increment(len(batch))
		})
		if err != nil {
			wg.Done()
			skip(len(candidates) - start)
			runErr = fmt.Errorf("submit batch %d: %w", n, err)
			break
		}
	}
	wg.Wait()
	tracker.Finish()

	if runErr == nil {
		runErr = ctx.Err()
	}
	b.logger.Info("embedding run finished", "stats", stats.String(), "elapsed", tracker.Elapsed().Round(time.Millisecond))
	return stats, runErr
}

// processBatch embeds every requested field of one batch. It runs detached
// from ctx cancellation so an issued provider call always completes.
func (b *Batcher) processBatch(ctx context.Context, n int, batch []*core.Article, fields []core.Field, query storage.CandidateQuery) *batchResult {
	ctx, span := b.tracer.Start(ctx, "embedding.batch", trace.WithAttributes(
		attribute.Int("batch.number", n),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	result := newBatchResult(len(batch))
	logger := b.logger.With("batch", n)

	for _, field := range fields {
		var (
			indexes []int
			texts   []string
		)
		for i, a := range batch {
			if !query.NeedsField(a, field) {
				result.count(field, func(fs *FieldStats) { fs.Skipped++ })
				continue
			}
			indexes = append(indexes, i)
			texts = append(texts, a.SourceText(field))
		}
		if len(texts) == 0 {
			continue
		}
		for _, i := range indexes {
			result.outcomes[i].attempted = true
		}

		vectors, calls, err := b.embed(ctx, texts)
		result.calls += calls
		if err != nil {
			result.failed = true
			for _, i := range indexes {
				result.outcomes[i].failed = true
			}
			result.count(field, func(fs *FieldStats) { fs.Failed += len(indexes) })
			span.RecordError(err, trace.WithAttributes(attribute.String("field", string(field))))
			logger.Error("embedding batch failed", "field", field, "articles", len(indexes), "err", err)
			continue
		}

		for j, i := range indexes {
			a := batch[i]
			if err := b.repo.SetEmbedding(ctx, a.Id, field, vectors[j], a.Fingerprint); err != nil {
				result.outcomes[i].failed = true
				result.count(field, func(fs *FieldStats) { fs.Failed++ })
				if errors.Is(err, storage.ErrStaleWrite) {
					logger.Warn("article text changed while embedding, leaving it for the next run", "id", a.Id, "field", field)
				} else {
					logger.Warn("storing embedding failed", "id", a.Id, "field", field, "err", err)
				}
				continue
			}
			result.count(field, func(fs *FieldStats) { fs.Success++ })
		}
	}

	if result.failed {
		span.SetStatus(codes.Error, "embedding batch failed")
	}
	return result
}

// embed calls the provider with retries. Wrong vector counts or sizes are
// not retried.
func (b *Batcher) embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	dims := b.repo.Dimensions()
	calls := 0
	var vectors [][]float32

	err := RetryWithBackoff(ctx, func() error {
		calls++
		callCtx, cancel := context.WithTimeout(ctx, b.config.CallTimeout)
		defer cancel()

		out, err := b.embedder.EmbedTexts(callCtx, ai.TaskPassage, texts)
		if err != nil {
			if errors.Is(err, ai.ErrDimensionMismatch) || errors.Is(err, ai.ErrResponseCount) || errors.Is(err, ai.ErrEmptyResponse) {
				return Permanent(err)
			}
			return err
		}
		if len(out) != len(texts) {
			return Permanent(fmt.Errorf("%w: got %d, want %d", ai.ErrResponseCount, len(out), len(texts)))
		}
		for _, v := range out {
			if err := storage.CheckDimensions(v, dims); err != nil {
				return Permanent(err)
			}
		}
		vectors = out
		return nil
	}, b.config.MaxRetries, b.config.RetryDelay)
	if err != nil {
		return nil, calls, fmt.Errorf("embed %d texts after %d attempts: %w", len(texts), calls, err)
	}

	for i := range vectors {
		vectors[i] = NormalizeVector(vectors[i])
	}
	return vectors, calls, nil
}

// resolveFields expands and de-duplicates the requested fields.
func resolveFields(requested []core.Field) ([]core.Field, error) {
	if len(requested) == 0 {
		return slices.Clone(core.EmbeddableFields), nil
	}
	var fields []core.Field
	for _, f := range requested {
		if _, err := core.ParseField(string(f)); err != nil {
			return nil, fmt.Errorf("%w: %q", err, f)
		}
		for _, expanded := range f.Fields() {
			if !slices.Contains(fields, expanded) {
				fields = append(fields, expanded)
			}
		}
	}
	return fields, nil
}
