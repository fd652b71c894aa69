package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mauriciolorca/fondos-scraper/internal/scraper"
	"github.com/mauriciolorca/fondos-scraper/internal/storage"
)

// testSite serves a one-page listing plus per-fund detail pages, letting
// individual funds be overridden with failures.
type testSite struct {
	cards   []string
	details map[string]http.HandlerFunc
}

func (ts *testSite) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			if r.URL.Query().Get("page") != "" {
				// Pages past the first are empty, ending pagination.
				w.Write([]byte(`<html><body></body></html>`))
				return
			}
			fmt.Fprint(w, "<html><body>")
			for _, c := range ts.cards {
				fmt.Fprint(w, c)
			}
			fmt.Fprint(w, "</body></html>")
			return
		}
		if h, ok := ts.details[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}
}

func card(path, name string) string {
	return fmt.Sprintf(`<div class="col-md-6 col-lg-3">
		<a href="%s">
			<span class="badge">Abierto</span>
			<span class="text-white">Nacional</span>
			<small class="text-uppercase">CORFO</small>
			<h6>%s</h6>
			<div class="card-body">
				<p>Personas naturales</p>
				<p>Inicio: 01/03/2023 | Fin: 30/04/2023</p>
				<p>$1.000.000</p>
			</div>
		</a>
	</div>`, path, name)
}

func detailPage(description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<div class="mb-4 d-block"><p>%s</p></div>
			<div class="me-3"><small>Categoría:</small><span class="bg-rosa">Emprendimiento</span></div>
			<div id="pills-04"><a href="https://example.com/bases.pdf">Bases</a></div>
		</body></html>`, description)
	}
}

func newTestPipeline(t *testing.T, serverURL, output string, skip map[string]bool) *Pipeline {
	t.Helper()

	sc, err := scraper.New(scraper.Options{
		BaseURL:    serverURL + "/",
		UserAgents: []string{"test-agent"},
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("creating scraper: %v", err)
	}

	sink, err := storage.Open(output)
	if err != nil {
		t.Fatalf("opening sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	return New(Options{
		Scraper:  sc,
		Sink:     sink,
		MaxPages: 3,
		SkipURLs: skip,
	})
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	return rows
}

func TestRun_SkipsFailedDetailAndContinues(t *testing.T) {
	site := &testSite{
		cards: []string{
			card("/concurso/1", "Fondo Uno"),
			card("/concurso/2", "Fondo Dos"),
			card("/concurso/3", "Fondo Tres"),
		},
		details: map[string]http.HandlerFunc{
			"/concurso/1": detailPage("Detalle uno"),
			"/concurso/2": http.NotFound,
			"/concurso/3": detailPage("Detalle tres"),
		},
	}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	output := filepath.Join(t.TempDir(), "fondos.csv")
	p := newTestPipeline(t, server.URL, output, nil)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if res.FundsSaved != 2 {
		t.Errorf("FundsSaved = %d, expected 2", res.FundsSaved)
	}
	if res.FundsFailed != 1 {
		t.Errorf("FundsFailed = %d, expected 1", res.FundsFailed)
	}
	if len(res.FailedURLs) != 1 {
		t.Fatalf("FailedURLs = %v, expected one entry", res.FailedURLs)
	}
	if res.FailedURLs[0] != server.URL+"/concurso/2" {
		t.Errorf("failed URL = %q, expected concurso/2", res.FailedURLs[0])
	}

	rows := readRows(t, output)
	if len(rows) != 3 {
		t.Fatalf("output has %d rows, expected header + 2 records", len(rows))
	}
	// IDs stay gap-free even though fund 2 failed in between.
	if rows[1][0] != "1" || rows[2][0] != "2" {
		t.Errorf("IDs = %q, %q; expected 1, 2", rows[1][0], rows[2][0])
	}
	if rows[1][5] != "Fondo Uno" || rows[2][5] != "Fondo Tres" {
		t.Errorf("names = %q, %q", rows[1][5], rows[2][5])
	}
}

func TestRun_MissingAmountYieldsPartialRecord(t *testing.T) {
	noAmount := `<div class="col-md-6 col-lg-3">
		<a href="/concurso/1">
			<span class="badge">Abierto</span>
			<small class="text-uppercase">CORFO</small>
			<h6>Fondo Sin Monto</h6>
			<div class="card-body">
				<p>Personas naturales</p>
				<p>Inicio: 01/03/2023 | Fin: 30/04/2023</p>
			</div>
		</a>
	</div>`
	site := &testSite{
		cards:   []string{noAmount},
		details: map[string]http.HandlerFunc{"/concurso/1": detailPage("Detalle")},
	}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	output := filepath.Join(t.TempDir(), "fondos.csv")
	p := newTestPipeline(t, server.URL, output, nil)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if res.FundsSaved != 1 {
		t.Fatalf("FundsSaved = %d, expected 1", res.FundsSaved)
	}

	rows := readRows(t, output)
	row := rows[1]
	if row[9] != "" {
		t.Errorf("MONTO column = %q, expected empty", row[9])
	}
	if row[5] != "Fondo Sin Monto" || row[7] != "01/03/2023" || row[10] != "Detalle" {
		t.Errorf("other fields should be populated, got name=%q start=%q desc=%q", row[5], row[7], row[10])
	}
}

func TestRun_SkipExisting(t *testing.T) {
	site := &testSite{
		cards: []string{
			card("/concurso/1", "Fondo Uno"),
			card("/concurso/2", "Fondo Dos"),
		},
		details: map[string]http.HandlerFunc{
			"/concurso/1": detailPage("Detalle uno"),
			"/concurso/2": detailPage("Detalle dos"),
		},
	}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	output := filepath.Join(t.TempDir(), "fondos.csv")
	skip := map[string]bool{server.URL + "/concurso/1": true}
	p := newTestPipeline(t, server.URL, output, skip)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if res.FundsSkipped != 1 {
		t.Errorf("FundsSkipped = %d, expected 1", res.FundsSkipped)
	}
	if res.FundsSaved != 1 {
		t.Errorf("FundsSaved = %d, expected 1", res.FundsSaved)
	}

	rows := readRows(t, output)
	if len(rows) != 2 {
		t.Fatalf("output has %d rows, expected header + 1 record", len(rows))
	}
	if rows[1][5] != "Fondo Dos" {
		t.Errorf("saved fund = %q, expected Fondo Dos", rows[1][5])
	}
}

func TestRun_IndexFailureSkipsPage(t *testing.T) {
	var pageOneServed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/concurso/1" {
			detailPage("Detalle")(w, r)
			return
		}
		switch r.URL.Query().Get("page") {
		case "":
			pageOneServed = true
			w.WriteHeader(http.StatusInternalServerError)
		case "2":
			fmt.Fprint(w, "<html><body>"+card("/concurso/1", "Fondo Uno")+"</body></html>")
		default:
			w.Write([]byte(`<html><body></body></html>`))
		}
	}))
	defer server.Close()

	output := filepath.Join(t.TempDir(), "fondos.csv")
	p := newTestPipeline(t, server.URL, output, nil)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if !pageOneServed {
		t.Error("page 1 was never requested")
	}
	if res.PagesFailed != 1 {
		t.Errorf("PagesFailed = %d, expected 1", res.PagesFailed)
	}
	if res.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, expected 2", res.PagesFetched)
	}
	if res.FundsSaved != 1 {
		t.Errorf("FundsSaved = %d, expected 1", res.FundsSaved)
	}
}

func TestRun_AppendFailureAborts(t *testing.T) {
	site := &testSite{
		cards: []string{
			card("/concurso/1", "Fondo Uno"),
			card("/concurso/2", "Fondo Dos"),
		},
		details: map[string]http.HandlerFunc{
			"/concurso/1": detailPage("Detalle uno"),
			"/concurso/2": detailPage("Detalle dos"),
		},
	}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	sc, err := scraper.New(scraper.Options{
		BaseURL:    server.URL + "/",
		UserAgents: []string{"test-agent"},
		MaxRetries: 1,
		RetryWait:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("creating scraper: %v", err)
	}

	output := filepath.Join(t.TempDir(), "fondos.csv")
	sink, err := storage.Open(output)
	if err != nil {
		t.Fatalf("opening sink: %v", err)
	}
	// Close the sink so the first append fails. An unusable output file
	// must abort the run, not degrade into per-fund failures.
	sink.Close()

	p := New(Options{
		Scraper:  sc,
		Sink:     sink,
		MaxPages: 1,
	})

	res, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected error for unusable sink")
	}
	if !errors.Is(err, storage.ErrWrite) {
		t.Errorf("error should wrap storage.ErrWrite, got %v", err)
	}
	if res.FundsSaved != 0 {
		t.Errorf("FundsSaved = %d, expected 0 after aborted run", res.FundsSaved)
	}
}

func TestRun_Cancellation(t *testing.T) {
	site := &testSite{
		cards:   []string{card("/concurso/1", "Fondo Uno")},
		details: map[string]http.HandlerFunc{"/concurso/1": detailPage("Detalle")},
	}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	output := filepath.Join(t.TempDir(), "fondos.csv")
	p := newTestPipeline(t, server.URL, output, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx)
	if err == nil {
		t.Fatal("Run() expected error for canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should be context.Canceled, got %v", err)
	}
	if res.PagesFailed != 0 {
		t.Errorf("PagesFailed = %d, cancellation must not count as a page failure", res.PagesFailed)
	}
}
