package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRunScrape_InvalidFormat(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--format", "xml"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid format")
	} else if !strings.Contains(err.Error(), "invalid format") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunScrape_InvalidDelayBounds(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--min-delay", "5s", "--max-delay", "1s"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for max-delay < min-delay")
	}
}

func TestWriteSummary_Text(t *testing.T) {
	var buf bytes.Buffer
	s := &Summary{
		Output:       "fondos.csv",
		PagesFetched: 3,
		FundsSaved:   12,
		FundsFailed:  2,
		FailedURLs:   []string{"https://fondos.gob.cl/concurso/7"},
		Duration:     42 * time.Second,
	}

	if err := WriteSummary(&buf, s, FormatText); err != nil {
		t.Fatalf("WriteSummary() failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Saved 12 funds to fondos.csv") {
		t.Errorf("summary missing saved count: %q", out)
	}
	if !strings.Contains(out, "2 funds failed") {
		t.Errorf("summary missing failure count: %q", out)
	}
	if !strings.Contains(out, "https://fondos.gob.cl/concurso/7") {
		t.Errorf("summary missing failed URL: %q", out)
	}
}

func TestWriteSummary_TextEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, &Summary{}, FormatText); err != nil {
		t.Fatalf("WriteSummary() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No funds found.") {
		t.Errorf("empty run summary = %q", buf.String())
	}
}

func TestWriteSummary_JSON(t *testing.T) {
	var buf bytes.Buffer
	s := &Summary{
		FinishedAt: time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC),
		Output:     "fondos.csv",
		FundsSaved: 5,
		Duration:   1500 * time.Millisecond,
	}

	if err := WriteSummary(&buf, s, FormatJSON); err != nil {
		t.Fatalf("WriteSummary() failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("summary is not valid JSON: %v", err)
	}
	if decoded["funds_saved"] != float64(5) {
		t.Errorf("funds_saved = %v, expected 5", decoded["funds_saved"])
	}
	if decoded["duration_seconds"] != 1.5 {
		t.Errorf("duration_seconds = %v, expected 1.5", decoded["duration_seconds"])
	}
}
