package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/newsindex/core"
)

// draftsFile is the on-disk shape of a JSON-only run.
type draftsFile struct {
	Articles []draftRecord `json:"articles"`
}

type draftRecord struct {
	Title    string `json:"title"`
	Reporter string `json:"reporter"`
	Summary  string `json:"summary"`
	Date     string `json:"date"`
	URL      string `json:"url"`
	Site     string `json:"site,omitempty"`
	Content  string `json:"content,omitempty"`
}

// legacyRecord also accepts the Chinese keys written by older exports.
type legacyRecord struct {
	draftRecord
	TitleZH    string `json:"標題"`
	ReporterZH string `json:"記者"`
	SummaryZH  string `json:"大綱"`
	DateZH     string `json:"日期"`
	URLZH      string `json:"連結"`
}

func (r legacyRecord) normalize() draftRecord {
	out := r.draftRecord
	out.Title = firstNonEmpty(out.Title, r.TitleZH)
	out.Reporter = firstNonEmpty(out.Reporter, r.ReporterZH)
	out.Summary = firstNonEmpty(out.Summary, r.SummaryZH)
	out.Date = firstNonEmpty(out.Date, r.DateZH)
	out.URL = firstNonEmpty(out.URL, r.URLZH)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DraftsFileName returns the JSON-only output name for a site and date.
func DraftsFileName(site string, date time.Time) string {
	site = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, site)
	return fmt.Sprintf("%s_%s.json", site, date.Format("20060102"))
}

// WriteDraftsJSON writes drafts to dir/DraftsFileName(site, date) and
// returns the file path.
func WriteDraftsJSON(dir, site string, date time.Time, drafts []*core.ArticleDraft) (string, error) {
	file := draftsFile{Articles: make([]draftRecord, 0, len(drafts))}
	for _, d := range drafts {
		file.Articles = append(file.Articles, draftRecord{
			Title:    d.Title,
			Reporter: d.Reporter,
			Summary:  d.Summary,
			Date:     core.FormatDate(d.PublishDate),
			URL:      d.SourceURL,
			Site:     d.SourceSite,
			Content:  d.Content,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDraftFile, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, DraftsFileName(site, date))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// LoadDraftsJSON reads a drafts file written by a JSON-only run.
// Records without a site take defaultSite. Dates that do not parse leave
// PublishDate zero, so the draft is counted invalid when upserted.
func LoadDraftsJSON(path, defaultSite string) ([]*core.ArticleDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFile, err)
	}
	var file struct {
		Articles []legacyRecord `json:"articles"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDraftFile, path, err)
	}

	drafts := make([]*core.ArticleDraft, 0, len(file.Articles))
	for _, raw := range file.Articles {
		rec := raw.normalize()
		date, _ := core.ParseDate(rec.Date)
		drafts = append(drafts, &core.ArticleDraft{
			Title:       strings.TrimSpace(rec.Title),
			Reporter:    strings.TrimSpace(rec.Reporter),
			Summary:     strings.TrimSpace(rec.Summary),
			Content:     rec.Content,
			PublishDate: date,
			SourceURL:   strings.TrimSpace(rec.URL),
			SourceSite:  firstNonEmpty(rec.Site, defaultSite),
		})
	}
	return drafts, nil
}

// SiteFromFileName recovers the site tag from a DraftsFileName.
func SiteFromFileName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}
