package extraction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/ai/mock"
	"github.com/poiesic/newsindex/fetch"
	"github.com/poiesic/newsindex/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	listURL    = "https://www.setn.com/ViewAll.aspx?pagegroupid=6"
	articleURL = "https://www.setn.com/News.aspx?NewsID="
)

var targetDate = time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

// fakeSite serves canned pages and records every requested URL.
type fakeSite struct {
	pages     map[string]*fetch.Page
	requested []string
}

func newFakeSite() *fakeSite {
	site := &fakeSite{pages: map[string]*fetch.Page{
		listURL + "&p=1": {Content: "[**立院三讀** 通過預算](/News.aspx?NewsID=1) [政治] 2026/01/07\n" +
			"[社會新聞](/News.aspx?NewsID=2) [社會]\n" +
			"[舊聞](/News.aspx?NewsID=3) [政治]\n" +
			"[壞連結](/News.aspx?NewsID=4) [政治]"},
		listURL + "&p=2": {Content: "[立院三讀 通過預算](/News.aspx?NewsID=1) [政治]\n" +
			"[外交部回應](https://www.setn.com/News.aspx?NewsID=5) [政治]"},
		articleURL + "1": {Content: "記者王小明／台北報導\n立法院今天三讀通過總預算。\n2026/01/07 10:00", Byline: "三立新聞網"},
		articleURL + "2": {Content: "社會案件\n2026/01/07"},
		articleURL + "3": {Content: "去年的新聞\n2026/01/06"},
		articleURL + "5": {Content: "外交部今天回應。\n2026/01/07 12:30", Byline: "政治中心"},
	}}
	return site
}

func (s *fakeSite) Fetch(ctx context.Context, url string, selectors []string) (*fetch.Page, error) {
	s.requested = append(s.requested, url)
	page, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: HTTP 404 for %s", fetch.ErrStatus, url)
	}
	out := *page
	out.URL = url
	return &out, nil
}

func testSource(t *testing.T) *source.Source {
	t.Helper()
	src, err := source.New(source.SourceConfig{
		Name:             "SETN",
		BaseURL:          listURL,
		ListSelectors:    []string{"#contFix"},
		ArticleSelectors: []string{"#ckuse"},
		CategoryPattern:  `\[(政治|社會|國際)\]`,
		LinkPattern:      `\[([^\]]+)\]\(([^)]*NewsID=\d+[^)]*)\)`,
		TargetCategory:   "政治",
	})
	require.NoError(t, err)
	return src
}

func TestExtract(t *testing.T) {
	site := newFakeSite()
	summarizer := mock.NewMockSummarizer()
	engine := NewEngine(site, WithSummarizer(summarizer))

	drafts, stats := engine.Collect(context.Background(), testSource(t), Request{TargetDate: targetDate, Pages: 3})
	require.Len(t, drafts, 2)

	first := drafts[0]
	assert.Equal(t, "立院三讀 通過預算", first.Title)
	assert.Equal(t, articleURL+"1", first.SourceURL)
	assert.Equal(t, "SETN", first.SourceSite)
	assert.Equal(t, targetDate, first.PublishDate)
	assert.Equal(t, "記者王小明／台北報導", first.Reporter)
	assert.Contains(t, first.Summary, "- 立法院今天三讀通過總預算。")
	assert.Contains(t, first.Content, "2026/01/07 10:00")

	second := drafts[1]
	assert.Equal(t, "外交部回應", second.Title)
	assert.Equal(t, "政治中心", second.Reporter, "byline fills a missing reporter")

	assert.Equal(t, Stats{
		Pages:         3,
		PageFailures:  1,
		Candidates:    6,
		Duplicates:    1,
		Filtered:      1,
		FetchFailures: 1,
		OffDate:       1,
		Accepted:      2,
	}, stats)
	assert.Equal(t, 2, summarizer.CallCount(), "off-date pages are not summarized")

	assert.NotContains(t, site.requested, articleURL+"2", "filtered candidates are never fetched")
}

func TestExtract_MaxArticles(t *testing.T) {
	site := newFakeSite()
	engine := NewEngine(site)

	drafts, stats := engine.Collect(context.Background(), testSource(t), Request{TargetDate: targetDate, Pages: 3, MaxArticles: 1})
	require.Len(t, drafts, 1)
	assert.Equal(t, articleURL+"1", drafts[0].SourceURL)
	assert.Equal(t, 1, stats.Pages)
	assert.NotContains(t, site.requested, articleURL+"5")
}

func TestExtract_UnlimitedArticles(t *testing.T) {
	engine := NewEngine(newFakeSite())
	drafts, _ := engine.Collect(context.Background(), testSource(t), Request{TargetDate: targetDate, MaxArticles: -1})
	assert.Len(t, drafts, 2)
}

func TestExtract_DefaultPages(t *testing.T) {
	site := newFakeSite()
	engine := NewEngine(site)
	_, stats := engine.Collect(context.Background(), testSource(t), Request{TargetDate: targetDate})
	assert.Equal(t, DefaultPages, stats.Pages)
	assert.Equal(t, DefaultPages-2, stats.PageFailures)
}

func TestExtract_SummaryFailureDegrades(t *testing.T) {
	summarizer := mock.NewMockSummarizer()
	summarizer.SummarizeFunc = func(ctx context.Context, content string) (*ai.ArticleSummary, error) {
		return nil, errors.New("model unavailable")
	}
	engine := NewEngine(newFakeSite(), WithSummarizer(summarizer))

	drafts, stats := engine.Collect(context.Background(), testSource(t), Request{TargetDate: targetDate, Pages: 2})
	require.Len(t, drafts, 2)
	assert.Empty(t, drafts[0].Summary)
	assert.Equal(t, "三立新聞網", drafts[0].Reporter)
	assert.Equal(t, 2, stats.Degraded)
	assert.Equal(t, 2, stats.Accepted)
}

func TestExtract_StopsWhenConsumerBreaks(t *testing.T) {
	site := newFakeSite()
	engine := NewEngine(site)

	var stats Stats
	count := 0
	for range engine.Extract(context.Background(), testSource(t), Request{TargetDate: targetDate, Pages: 2}, &stats) {
		count++
		break
	}
	assert.Equal(t, 1, count)
	assert.NotContains(t, site.requested, listURL+"&p=2")
}

func TestExtract_Canceled(t *testing.T) {
	site := newFakeSite()
	engine := NewEngine(site)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	drafts, stats := engine.Collect(ctx, testSource(t), Request{TargetDate: targetDate})
	assert.Empty(t, drafts)
	assert.Zero(t, stats.Pages)
	assert.Empty(t, site.requested)
}

func TestExtract_InvalidTitle(t *testing.T) {
	site := newFakeSite()
	site.pages[listURL+"&p=1"] = &fetch.Page{Content: "[** **](/News.aspx?NewsID=1) [政治]"}
	engine := NewEngine(site)

	drafts, stats := engine.Collect(context.Background(), testSource(t), Request{TargetDate: targetDate, Pages: 1})
	assert.Empty(t, drafts)
	assert.Equal(t, 1, stats.Invalid)
}

func TestStats_Add(t *testing.T) {
	total := Stats{Pages: 1, Accepted: 2}
	total.Add(Stats{Pages: 2, Accepted: 1, Degraded: 1})
	assert.Equal(t, Stats{Pages: 3, Accepted: 3, Degraded: 1}, total)
	assert.Contains(t, total.String(), "accepted=3")
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "立院 三讀", cleanTitle(" **立院**\n  三讀 "))
	assert.Equal(t, "a_b", cleanTitle(`a\_b`))
}
