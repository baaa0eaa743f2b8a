// Package extraction turns news list pages into article drafts.
//
// An Engine walks the list pages of a source.Source, picks link candidates
// with the source's link pattern, keeps those in the target category, fetches
// each article page and confirms it belongs to the target date. Accepted
// pages are handed to an ai.Summarizer for the reporter byline and a bullet
// summary. A summarizer failure degrades the draft instead of dropping it.
//
// Basic usage:
//
//	engine := extraction.NewEngine(fetch.NewHTTPFetcher(fetch.DefaultHTTPConfig()),
//		extraction.WithSummarizer(provider.Summarizer()))
//
//	var stats extraction.Stats
//	for draft := range engine.Extract(ctx, src, extraction.Request{TargetDate: day}, &stats) {
//		...
//	}
package extraction
