package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

type ID uint64

// IDFromContent derives a stable 64-bit identifier from text.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ArticleDraft is a candidate article produced by extraction and not yet persisted.
type ArticleDraft struct {
	Title       string
	Reporter    string
	Summary     string    // Bullet-style summary, may span several lines
	Content     string    // Article body text as fetched
	PublishDate time.Time // Calendar date, midnight UTC
	SourceURL   string    // Absolute URL, the identity key
	SourceSite  string
}

// Fingerprint returns the change fingerprint of the draft's mutable text.
func (d *ArticleDraft) Fingerprint() string {
	return Fingerprint(d.Title, d.Summary, d.Content)
}

type Article struct {
	Id               ID
	Title            string
	Reporter         string
	Summary          string
	Content          string
	PublishDate      time.Time
	SourceURL        string
	SourceSite       string
	TitleEmbedding   []float32 // Absent until the embedding batcher fills it
	SummaryEmbedding []float32 // Absent until the embedding batcher fills it
	Fingerprint      string    // Fingerprint of the current text fields
	// Fingerprint of the text each embedding was computed from
	TitleEmbeddedFingerprint   string
	SummaryEmbeddedFingerprint string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// Embedding returns the stored vector for a single field.
func (a *Article) Embedding(field Field) []float32 {
	switch field {
	case FieldTitle:
		return a.TitleEmbedding
	case FieldSummary:
		return a.SummaryEmbedding
	}
	return nil
}

// SetEmbedding stores the vector for a single field together with the
// fingerprint of the text it was computed from.
func (a *Article) SetEmbedding(field Field, vector []float32, fingerprint string) {
	switch field {
	case FieldTitle:
		a.TitleEmbedding = vector
		a.TitleEmbeddedFingerprint = fingerprint
	case FieldSummary:
		a.SummaryEmbedding = vector
		a.SummaryEmbeddedFingerprint = fingerprint
	}
}

// EmbeddedFingerprint returns the fingerprint recorded with a field's embedding.
func (a *Article) EmbeddedFingerprint(field Field) string {
	switch field {
	case FieldTitle:
		return a.TitleEmbeddedFingerprint
	case FieldSummary:
		return a.SummaryEmbeddedFingerprint
	}
	return ""
}

// SourceText returns the text a field's embedding is computed from.
func (a *Article) SourceText(field Field) string {
	switch field {
	case FieldTitle:
		return a.Title
	case FieldSummary:
		return a.Summary
	}
	return ""
}

// FieldStale reports whether a field's embedding was computed from text
// that has since changed. A field without an embedding is never stale.
func (a *Article) FieldStale(field Field) bool {
	if len(a.Embedding(field)) == 0 {
		return false
	}
	return a.EmbeddedFingerprint(field) != a.Fingerprint
}

// Stale reports whether any stored embedding is stale.
func (a *Article) Stale() bool {
	for _, f := range EmbeddableFields {
		if a.FieldStale(f) {
			return true
		}
	}
	return false
}

// ApplyDraft overwrites the text fields from a re-sighted draft.
// Embeddings are left untouched.
func (a *Article) ApplyDraft(d *ArticleDraft) {
	a.Title = d.Title
	a.Reporter = d.Reporter
	a.Summary = d.Summary
	a.Content = d.Content
	a.PublishDate = TruncateDate(d.PublishDate)
	a.SourceSite = d.SourceSite
	a.Fingerprint = d.Fingerprint()
}

// Field names an embeddable article field.
type Field string

const (
	FieldTitle   Field = "title"
	FieldSummary Field = "summary"
	// FieldBoth ranks on the title and summary embeddings combined.
	FieldBoth Field = "both"
)

// EmbeddableFields lists the fields that carry their own embedding column.
var EmbeddableFields = []Field{FieldTitle, FieldSummary}

// ParseField converts a user supplied field name.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldTitle, FieldSummary, FieldBoth:
		return Field(s), nil
	}
	return "", ErrInvalidField
}

// Fields expands FieldBoth into its components.
func (f Field) Fields() []Field {
	if f == FieldBoth {
		return EmbeddableFields
	}
	return []Field{f}
}

// CombinePolicy decides how the title and summary distances merge when ranking on both fields.
type CombinePolicy int

const (
	// CombineAverage ranks by the mean of the two cosine distances.
	CombineAverage CombinePolicy = iota
	// CombineMin ranks by the smaller of the two cosine distances.
	CombineMin
)

func (p CombinePolicy) String() string {
	if p == CombineMin {
		return "min"
	}
	return "average"
}

// Combine merges a title and summary distance.
func (p CombinePolicy) Combine(title, summary float64) float64 {
	if p == CombineMin {
		return min(title, summary)
	}
	return (title + summary) / 2
}

// Filter holds the scalar pre-filters applied before distance ranking.
// Zero values disable the corresponding bound.
type Filter struct {
	SourceSite string
	DateFrom   time.Time // Inclusive
	DateTo     time.Time // Inclusive
}

// Matches reports whether an article passes the filter.
func (f Filter) Matches(a *Article) bool {
	if f.SourceSite != "" && a.SourceSite != f.SourceSite {
		return false
	}
	if !f.DateFrom.IsZero() && a.PublishDate.Before(TruncateDate(f.DateFrom)) {
		return false
	}
	if !f.DateTo.IsZero() && a.PublishDate.After(TruncateDate(f.DateTo)) {
		return false
	}
	return true
}

type SearchResult struct {
	Article    *Article
	Distance   float64 // Cosine distance, 1 - cosine similarity
	Similarity float64
}

// UpsertOutcome classifies what a single upsert did.
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota + 1
	OutcomeUpdated
	OutcomeSkipped
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}
