package ai

// TaskHint declares how a text will be used so asymmetric embedding models
// can place passages and queries in comparable positions of one vector space.
type TaskHint string

const (
	// TaskPassage marks text stored in the corpus (titles, summaries).
	TaskPassage TaskHint = "retrieval.passage"
	// TaskQuery marks search query text.
	TaskQuery TaskHint = "retrieval.query"
)

// Valid reports whether the hint is one of the known task types.
func (t TaskHint) Valid() bool {
	return t == TaskPassage || t == TaskQuery
}

// ArticleSummary holds the fields a Summarizer extracts from article text.
type ArticleSummary struct {
	// Reporter is the byline, e.g. "記者王小明／台北報導". Empty when not found.
	Reporter string

	// Summary is 3-5 bullet points, one per line, each starting with "- ".
	Summary string
}
