// Package fund provides the data model for government fund announcements.
//
// The fund package represents each scraped announcement as a flat Record
// mirroring the columns of the output CSV. Field values are kept as free
// text exactly as they appear on fondos.gob.cl; only the status badge is
// normalized into an enum.
package fund
