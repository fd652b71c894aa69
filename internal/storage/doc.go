// Package storage provides the append-only CSV sink for extracted funds.
//
// The Writer owns the open output file and the sequential record ID
// counter. Every appended row is flushed immediately so progress survives
// interruption; any failure touching the file wraps ErrWrite and is fatal
// to the run.
package storage
