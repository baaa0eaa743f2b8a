package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/newsindex/extraction"
	"github.com/poiesic/newsindex/fetch"
	"github.com/poiesic/newsindex/source"
	"github.com/poiesic/newsindex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sitePages is a read-only page map shared by the fake fetcher.
var sitePages = map[string]string{
	"https://a.example.com/list?s=1&p=1": "[立院三讀通過預算](/news/1) [政治]\n[車禍](/news/2) [社會]",
	"https://a.example.com/news/1":       "記者王小明／台北報導\n立法院今天三讀通過總預算。\n2026/01/07",
	"https://a.example.com/news/2":       "車禍新聞\n2026/01/07",
	"https://b.example.com/list?s=1&p=1": "[外交部回應](/news/7) [政治]\n[壞頁面](/news/8) [政治]",
	"https://b.example.com/news/7":       "外交部今天回應。\n2026/01/07",
}

func fakeFetcher() fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, url string, selectors []string) (*fetch.Page, error) {
		content, ok := sitePages[url]
		if !ok {
			return nil, fmt.Errorf("%w: HTTP 404 for %s", fetch.ErrStatus, url)
		}
		return &fetch.Page{URL: url, Content: content}, nil
	})
}

func testSources(t *testing.T) []*source.Source {
	t.Helper()
	var out []*source.Source
	for _, name := range []string{"a", "b"} {
		src, err := source.New(source.SourceConfig{
			Name:            name,
			BaseURL:         "https://" + name + ".example.com/list?s=1",
			CategoryPattern: `\[(政治|社會)\]`,
			LinkPattern:     `\[([^\]]+)\]\((/news/\d+)\)`,
			TargetCategory:  "政治",
		})
		require.NoError(t, err)
		out = append(out, src)
	}
	return out
}

func TestPipeline_Run(t *testing.T) {
	repo := newTestRepo(t)
	p, err := NewPipeline(extraction.NewEngine(fakeFetcher()), repo, WithPoolSize(2))
	require.NoError(t, err)
	defer p.Release()

	ctx := context.Background()
	req := extraction.Request{TargetDate: day, Pages: 1}
	report, err := p.Run(ctx, testSources(t), req)
	require.NoError(t, err)

	require.Len(t, report.Sites, 2)
	assert.Equal(t, "a", report.Sites[0].Site)
	assert.Equal(t, UpsertStats{Total: 1, Inserted: 1}, report.Sites[0].Upsert)
	assert.Equal(t, 1, report.Sites[0].Extraction.Filtered)
	assert.Equal(t, "b", report.Sites[1].Site)
	assert.Equal(t, 1, report.Sites[1].Extraction.FetchFailures)

	assert.Equal(t, UpsertStats{Total: 2, Inserted: 2}, report.Upsert)
	assert.Equal(t, 2, report.Extraction.Accepted)
	assert.True(t, report.Partial(), "a failed article fetch makes the run partial")

	stored, err := repo.GetArticleBySourceURL(ctx, "https://b.example.com/news/7")
	require.NoError(t, err)
	assert.Equal(t, "b", stored.SourceSite)
	assert.Equal(t, "外交部回應", stored.Title)

	// A second run over unchanged pages writes nothing.
	report, err = p.Run(ctx, testSources(t), req)
	require.NoError(t, err)
	assert.Equal(t, UpsertStats{Total: 2, Skipped: 2}, report.Upsert)
}

func TestPipeline_JSONOnly(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPipeline(extraction.NewEngine(fakeFetcher()), nil, WithJSONOnly(dir))
	require.NoError(t, err)
	defer p.Release()

	report, err := p.Run(context.Background(), testSources(t)[:1], extraction.Request{TargetDate: day, Pages: 1})
	require.NoError(t, err)

	site := report.Sites[0]
	require.NoError(t, site.Err)
	assert.Equal(t, filepath.Join(dir, "a_20260107.json"), site.OutputFile)
	assert.Zero(t, site.Upsert.Total)
	assert.False(t, report.Partial())

	drafts, err := LoadDraftsJSON(site.OutputFile, SiteFromFileName(site.OutputFile))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "立院三讀通過預算", drafts[0].Title)
	assert.Equal(t, "https://a.example.com/news/1", drafts[0].SourceURL)

	_, err = p.Import(context.Background(), drafts, "a")
	assert.ErrorIs(t, err, ErrRepositoryRequired)
}

func TestPipeline_ImportLoadedDrafts(t *testing.T) {
	dir := t.TempDir()
	jsonOnly, err := NewPipeline(extraction.NewEngine(fakeFetcher()), nil, WithJSONOnly(dir))
	require.NoError(t, err)
	defer jsonOnly.Release()
	report, err := jsonOnly.Run(context.Background(), testSources(t), extraction.Request{TargetDate: day, Pages: 1})
	require.NoError(t, err)

	repo := newTestRepo(t)
	p, err := NewPipeline(extraction.NewEngine(fakeFetcher()), repo, WithJSONOutput(t.TempDir()))
	require.NoError(t, err)
	defer p.Release()

	total := UpsertStats{}
	for _, site := range report.Sites {
		drafts, err := LoadDraftsJSON(site.OutputFile, site.Site)
		require.NoError(t, err)
		stats, err := p.Import(context.Background(), drafts, site.Site)
		require.NoError(t, err)
		total.Add(stats)
	}
	assert.Equal(t, UpsertStats{Total: 2, Inserted: 2}, total)
}

func TestPipeline_WritesJSONAlongsideStore(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPipeline(extraction.NewEngine(fakeFetcher()), newTestRepo(t), WithJSONOutput(dir))
	require.NoError(t, err)
	defer p.Release()

	report, err := p.Run(context.Background(), testSources(t)[:1], extraction.Request{TargetDate: day, Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Upsert.Inserted)
	_, err = os.Stat(filepath.Join(dir, "a_20260107.json"))
	assert.NoError(t, err)
}

func TestPipeline_ClosedStore(t *testing.T) {
	repo := &flakyRepo{
		ArticleRepository: newTestRepo(t),
		fail:              map[string]error{"https://a.example.com/news/1": storage.ErrStorageClosed},
	}
	p, err := NewPipeline(extraction.NewEngine(fakeFetcher()), repo)
	require.NoError(t, err)
	defer p.Release()

	report, err := p.Run(context.Background(), testSources(t)[:1], extraction.Request{TargetDate: day, Pages: 1})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Upsert.Failed)
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(nil, newTestRepo(t))
	assert.ErrorIs(t, err, ErrEngineRequired)

	_, err = NewPipeline(extraction.NewEngine(fakeFetcher()), nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	p, err := NewPipeline(extraction.NewEngine(fakeFetcher()), newTestRepo(t))
	require.NoError(t, err)
	defer p.Release()
	_, err = p.Run(context.Background(), nil, extraction.Request{TargetDate: day})
	assert.ErrorIs(t, err, ErrNoSources)
}
