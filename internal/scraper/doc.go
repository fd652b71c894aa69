// Package scraper provides HTTP fetching and HTML parsing for the
// fondos.gob.cl fund searcher.
//
// The scraper walks the paginated listing, extracts the per-fund cards
// with fixed structural selectors, and fetches each fund's detail page
// with a rotating User-Agent and bounded retry on transient failures.
// Every selector miss resolves to an empty field rather than an error, so
// partial records survive markup drift.
package scraper
