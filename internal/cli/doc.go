// Package cli implements the fondos-scraper command line interface.
//
// The CLI wires configuration, logging, the scraper, the CSV sink, and
// the pipeline together, then reports a run summary as text or JSON. The
// process exits zero even when individual funds fail; only an unusable
// output file or invalid flags produce a non-zero exit.
package cli
