package extraction

import "fmt"

// Stats counts what happened to each candidate of an extraction run.
// A candidate is counted once, in the first bucket that rejects it, or in
// Accepted. Degraded drafts are also counted as Accepted.
type Stats struct {
	Pages         int // List pages requested
	PageFailures  int // List pages that could not be fetched
	Candidates    int // Link matches found on list pages
	Duplicates    int // Links already seen earlier in the run
	Filtered      int // Links outside the target category
	FetchFailures int // Article pages that could not be fetched
	OffDate       int // Article pages not matching the target date
	Invalid       int // Drafts failing validation
	Degraded      int // Drafts kept without reporter and summary
	Accepted      int
}

// Add accumulates another run's counts.
func (s *Stats) Add(o Stats) {
	s.Pages += o.Pages
	s.PageFailures += o.PageFailures
	s.Candidates += o.Candidates
	s.Duplicates += o.Duplicates
	s.Filtered += o.Filtered
	s.FetchFailures += o.FetchFailures
	s.OffDate += o.OffDate
	s.Invalid += o.Invalid
	s.Degraded += o.Degraded
	s.Accepted += o.Accepted
}

func (s Stats) String() string {
	return fmt.Sprintf("pages=%d (failed %d) candidates=%d accepted=%d duplicates=%d filtered=%d off-date=%d fetch-failures=%d invalid=%d degraded=%d",
		s.Pages, s.PageFailures, s.Candidates, s.Accepted, s.Duplicates, s.Filtered, s.OffDate, s.FetchFailures, s.Invalid, s.Degraded)
}
