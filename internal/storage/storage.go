package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mauriciolorca/fondos-scraper/internal/fund"
)

// ErrWrite marks failures opening or appending to the output file. Unlike
// fetch errors, a write error aborts the whole run.
var ErrWrite = errors.New("write failed")

// Writer appends fund records to a CSV file. It owns the file handle and
// the ID counter; records get their ID assigned at append time.
type Writer struct {
	file   *os.File
	csv    *csv.Writer
	path   string
	nextID int
}

// Open opens the CSV at path in append mode, creating it if needed. The
// header row is written only when the file is new or empty.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrWrite, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrWrite, path, err)
	}

	w := &Writer{
		file:   f,
		csv:    csv.NewWriter(f),
		path:   path,
		nextID: 1,
	}

	if info.Size() == 0 {
		if err := w.writeRow(fund.CSVHeader()); err != nil {
			f.Close()
			return nil, err
		}
	}

	return w, nil
}

// Append assigns the next sequential ID to rec, writes it as one CSV row,
// and flushes immediately. The counter only advances on success, so IDs
// stay gap-free.
func (w *Writer) Append(rec *fund.Record) error {
	rec.ID = w.nextID
	if err := w.writeRow(rec.CSVRow()); err != nil {
		return err
	}
	w.nextID++
	return nil
}

// Saved returns how many records this Writer has appended.
func (w *Writer) Saved() int {
	return w.nextID - 1
}

// Close flushes buffered data and closes the file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: flushing %s: %v", ErrWrite, w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrWrite, w.path, err)
	}
	return nil
}

func (w *Writer) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("%w: appending to %s: %v", ErrWrite, w.path, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("%w: flushing %s: %v", ErrWrite, w.path, err)
	}
	return nil
}

// ExistingURLs scans a previous output file and returns the set of URLs
// already saved, keyed for the skip-existing mode. A missing file yields
// an empty set.
func ExistingURLs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	urls := make(map[string]bool)
	urlCol := 1
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		if first {
			first = false
			for i, name := range row {
				if name == "URL" {
					urlCol = i
				}
			}
			continue
		}

		if urlCol < len(row) && row[urlCol] != "" {
			urls[row[urlCol]] = true
		}
	}

	return urls, nil
}
