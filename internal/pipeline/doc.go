// Package pipeline orchestrates the extraction run.
//
// The pipeline is strictly sequential: for each listing page it extracts
// the fund cards, and for each card it fetches the detail page, merges the
// detail fields, and appends the record to the CSV sink before moving on.
// A politeness delay precedes every outbound request after the first.
// Per-page and per-fund failures are logged and counted; only a sink
// failure aborts the run.
package pipeline
