package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// OutputFormat specifies the summary format.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Summary is the end-of-run report.
type Summary struct {
	FinishedAt   time.Time     `json:"finished_at"`
	Output       string        `json:"output"`
	PagesFetched int           `json:"pages_fetched"`
	PagesFailed  int           `json:"pages_failed"`
	FundsSaved   int           `json:"funds_saved"`
	FundsFailed  int           `json:"funds_failed"`
	FundsSkipped int           `json:"funds_skipped"`
	FailedURLs   []string      `json:"failed_urls,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationSecs float64       `json:"duration_seconds"`
}

// WriteSummary writes the run summary in the requested format.
func WriteSummary(w io.Writer, s *Summary, format OutputFormat) error {
	s.DurationSecs = s.Duration.Seconds()

	switch format {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatText:
		return writeText(w, s)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func writeJSON(w io.Writer, s *Summary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s)
}

func writeText(w io.Writer, s *Summary) error {
	if s.FundsSaved == 0 && s.FundsFailed == 0 && s.FundsSkipped == 0 {
		fmt.Fprintln(w, "No funds found.")
		return nil
	}

	fmt.Fprintf(w, "Saved %d funds to %s (%d pages", s.FundsSaved, s.Output, s.PagesFetched)
	if s.PagesFailed > 0 {
		fmt.Fprintf(w, ", %d pages failed", s.PagesFailed)
	}
	if s.FundsFailed > 0 {
		fmt.Fprintf(w, ", %d funds failed", s.FundsFailed)
	}
	if s.FundsSkipped > 0 {
		fmt.Fprintf(w, ", %d skipped", s.FundsSkipped)
	}
	fmt.Fprintf(w, ") in %s\n", s.Duration.Round(time.Millisecond))

	if len(s.FailedURLs) > 0 {
		fmt.Fprintln(w, "\nFailed URLs:")
		for _, u := range s.FailedURLs {
			fmt.Fprintf(w, "  %s\n", u)
		}
	}

	return nil
}
