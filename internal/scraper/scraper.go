package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"

	"github.com/mauriciolorca/fondos-scraper/internal/fund"
	"github.com/mauriciolorca/fondos-scraper/internal/logger"
)

const (
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "es-ES,es;q=0.8,en-US;q=0.5,en;q=0.3"

	defaultTimeout   = 30 * time.Second
	defaultRetryWait = 2 * time.Second
)

// ErrFetch marks network and HTTP status failures. Callers distinguish it
// from fatal errors with errors.Is.
var ErrFetch = errors.New("fetch failed")

// Card holds the fields extracted from one listing card. Fields whose
// element is absent are empty strings.
type Card struct {
	URL              string
	Status           fund.Status
	TerritorialScope string
	Institution      string
	Name             string
	Beneficiaries    string
	StartDate        string
	EndDate          string
	Amount           string
}

// Detail holds the fields extracted from a fund's detail page.
type Detail struct {
	Description string
	Category    string
	TermsURL    string
}

// Scraper fetches and parses fondos.gob.cl listing and detail pages.
type Scraper struct {
	client     *http.Client
	baseURL    *url.URL
	userAgents []string
	uaIndex    int
	maxRetries int
	retryWait  time.Duration
	log        *slog.Logger
	metrics    *logger.Metrics
}

// Options configures a Scraper.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgents []string
	MaxRetries int
	RetryWait  time.Duration
	Logger     *slog.Logger
	Metrics    *logger.Metrics
}

// New creates a Scraper for the given listing base URL.
func New(opts Options) (*Scraper, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = logger.NewMetrics()
	}

	return &Scraper{
		client:     &http.Client{Timeout: opts.Timeout},
		baseURL:    base,
		userAgents: opts.UserAgents,
		maxRetries: opts.MaxRetries,
		retryWait:  opts.RetryWait,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// nextUserAgent returns the identifier at index prev and the index for the
// following request, cycling over the configured list.
func nextUserAgent(agents []string, prev int) (string, int) {
	if len(agents) == 0 {
		return "", 0
	}
	return agents[prev%len(agents)], (prev + 1) % len(agents)
}

// IndexURL returns the URL for the given 1-based listing page. Page 1 is
// the bare base URL.
func (s *Scraper) IndexURL(page int) string {
	if page <= 1 {
		return s.baseURL.String()
	}
	u := *s.baseURL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchIndex fetches one listing page. Failures wrap ErrFetch; the caller
// decides whether to skip the page or stop.
func (s *Scraper) FetchIndex(ctx context.Context, page int) (*goquery.Document, error) {
	return s.get(ctx, s.IndexURL(page))
}

// FetchDetail fetches a fund detail page, retrying transient failures
// (transport errors and 5xx responses) up to the configured limit with a
// constant wait between attempts. 4xx responses are not retried.
func (s *Scraper) FetchDetail(ctx context.Context, rawURL string) (*goquery.Document, error) {
	var doc *goquery.Document

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryWait), uint64(s.maxRetries)),
		ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		doc, err = s.get(ctx, rawURL)

		var perm *backoff.PermanentError
		if err != nil && !errors.As(err, &perm) && attempt <= s.maxRetries {
			s.metrics.Incr("fetch.retries")
			s.log.Debug("retrying detail fetch", "url", rawURL, "attempt", attempt, "error", err)
		}
		return err
	}, policy)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// get issues one GET with the next rotating User-Agent and parses the body.
func (s *Scraper) get(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}

	agent, next := nextUserAgent(s.userAgents, s.uaIndex)
	s.uaIndex = next
	if agent != "" {
		req.Header.Set("User-Agent", agent)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s: unexpected status code %d", ErrFetch, rawURL, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parsing HTML: %w", err))
	}

	return doc, nil
}

// ExtractCards pulls every fund card out of a listing page. A page with
// no cards returns an empty slice, not an error.
func (s *Scraper) ExtractCards(doc *goquery.Document) []Card {
	cards := make([]Card, 0)
	doc.Find("div.col-md-6.col-lg-3").Each(func(_ int, sel *goquery.Selection) {
		cards = append(cards, s.extractCard(sel))
	})
	return cards
}

// extractCard reads one card's fields. Each selector is tried
// independently so a missing element only blanks its own field.
func (s *Scraper) extractCard(sel *goquery.Selection) Card {
	var c Card

	href, _ := sel.Find("a").First().Attr("href")
	c.URL = s.resolveURL(href)

	c.Status = fund.DeriveStatus(sel.Find("span.badge").First().Text())

	scope := strings.TrimSpace(sel.Find("span.text-white").First().Text())
	if scope == "" {
		scope = strings.TrimSpace(sel.Find("span.text-dark").First().Text())
	}
	c.TerritorialScope = scope

	c.Institution = strings.TrimSpace(sel.Find("small.text-uppercase").First().Text())
	c.Name = strings.TrimSpace(sel.Find("h6").First().Text())

	// The card body carries three unlabeled paragraphs: beneficiaries,
	// the date range, and the amount. Eq past the end yields an empty
	// selection, so short bodies degrade to empty fields.
	paragraphs := sel.Find("div.card-body").First().Find("p")
	c.Beneficiaries = strings.TrimSpace(paragraphs.Eq(0).Text())
	c.StartDate, c.EndDate = fund.SplitDateRange(paragraphs.Eq(1).Text())
	c.Amount = strings.TrimSpace(paragraphs.Eq(2).Text())

	return c
}

// resolveURL makes a card link absolute against the site root.
func (s *Scraper) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return s.baseURL.ResolveReference(ref).String()
}

// ParseDetail extracts description, category, and the terms document link
// from a fund detail page. Missing elements resolve to empty strings.
func ParseDetail(doc *goquery.Document) Detail {
	var d Detail

	d.Description = strings.TrimSpace(doc.Find("div.mb-4.d-block p").First().Text())

	doc.Find("div.me-3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Find("small").Text(), "Categoría:") {
			return true
		}
		d.Category = strings.TrimSpace(sel.Find("span.bg-rosa").First().Text())
		return false
	})

	d.TermsURL, _ = doc.Find("div#pills-04 a").First().Attr("href")

	return d
}
