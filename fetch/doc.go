// Package fetch retrieves list and article pages as markdown-style text.
//
// Two implementations are provided. HTTPFetcher downloads pages directly,
// paces requests per host and renders the regions matched by CSS selectors
// with goquery, falling back to readability when nothing matches.
// FirecrawlFetcher hands the same job to a Firecrawl scrape service.
package fetch
