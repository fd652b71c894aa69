package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mauriciolorca/fondos-scraper/internal/fund"
	"github.com/mauriciolorca/fondos-scraper/internal/logger"
	"github.com/mauriciolorca/fondos-scraper/internal/scraper"
	"github.com/mauriciolorca/fondos-scraper/internal/storage"
)

// Pipeline walks the fund listing and streams each extracted record to
// the output file. It owns all mutable run state (request counter, skip
// set); nothing here is shared across goroutines.
type Pipeline struct {
	scraper  *scraper.Scraper
	sink     *storage.Writer
	log      *slog.Logger
	metrics  *logger.Metrics
	maxPages int
	minDelay time.Duration
	maxDelay time.Duration
	skip     map[string]bool
	requests int
	jitter   *rand.Rand
}

// Options configures a Pipeline.
type Options struct {
	Scraper  *scraper.Scraper
	Sink     *storage.Writer
	Logger   *slog.Logger
	Metrics  *logger.Metrics
	MaxPages int
	MinDelay time.Duration
	MaxDelay time.Duration
	// SkipURLs are detail URLs already present in the output file; cards
	// pointing at them are skipped before any detail fetch.
	SkipURLs map[string]bool
}

// Result summarizes one run.
type Result struct {
	PagesFetched int      `json:"pages_fetched"`
	PagesFailed  int      `json:"pages_failed"`
	FundsSaved   int      `json:"funds_saved"`
	FundsFailed  int      `json:"funds_failed"`
	FundsSkipped int      `json:"funds_skipped"`
	FailedURLs   []string `json:"failed_urls,omitempty"`
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = logger.NewMetrics()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}

	return &Pipeline{
		scraper:  opts.Scraper,
		sink:     opts.Sink,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		maxPages: opts.MaxPages,
		minDelay: opts.MinDelay,
		maxDelay: opts.MaxDelay,
		skip:     opts.SkipURLs,
		jitter:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the full extraction. Pagination stops at the first page
// with no fund cards or after the configured maximum. The returned error
// is non-nil only for fatal conditions: a sink failure or cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	for page := 1; page <= p.maxPages; page++ {
		if err := p.wait(ctx); err != nil {
			return res, err
		}

		doc, err := p.scraper.FetchIndex(ctx, page)
		if err != nil {
			// Cancellation surfaces as a fetch error; it is not a page
			// failure and must stop the run instead.
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.log.Error("fetching listing page", "page", page, "error", err)
			res.PagesFailed++
			p.metrics.Incr("pages.failed")
			continue
		}
		res.PagesFetched++
		p.metrics.Incr("pages.fetched")

		cards := p.scraper.ExtractCards(doc)
		if len(cards) == 0 {
			p.log.Warn("no fund cards on page, stopping pagination", "page", page)
			break
		}
		p.log.Info("listing page fetched", "page", page, "funds", len(cards))

		for _, card := range cards {
			if card.URL == "" {
				p.log.Warn("fund card without detail link", "page", page, "name", card.Name)
				res.FundsFailed++
				p.metrics.Incr("funds.failed")
				continue
			}
			if p.skip[card.URL] {
				p.log.Debug("fund already in output, skipping", "url", card.URL)
				res.FundsSkipped++
				p.metrics.Incr("funds.skipped")
				continue
			}

			if err := p.processCard(ctx, card, res); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// processCard fetches one fund's detail page and appends the merged
// record. Fetch failures are recorded in res and swallowed; append
// failures propagate and abort the run.
func (p *Pipeline) processCard(ctx context.Context, card scraper.Card, res *Result) error {
	if err := p.wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	doc, err := p.scraper.FetchDetail(ctx, card.URL)
	if err != nil {
		p.log.Error("fetching fund detail", "url", card.URL, "error", err)
		res.FundsFailed++
		res.FailedURLs = append(res.FailedURLs, card.URL)
		p.metrics.Incr("funds.failed")
		return nil
	}
	p.metrics.RecordTiming("fetch.detail", time.Since(start))

	detail := scraper.ParseDetail(doc)

	rec := &fund.Record{
		URL:              card.URL,
		Status:           card.Status,
		TerritorialScope: card.TerritorialScope,
		Institution:      card.Institution,
		Name:             card.Name,
		Beneficiaries:    card.Beneficiaries,
		StartDate:        card.StartDate,
		EndDate:          card.EndDate,
		Amount:           card.Amount,
		Description:      detail.Description,
		Category:         detail.Category,
		TermsURL:         detail.TermsURL,
		ExtractedAt:      time.Now(),
	}

	if err := p.sink.Append(rec); err != nil {
		return fmt.Errorf("appending record for %s: %w", card.URL, err)
	}
	res.FundsSaved++
	p.metrics.Incr("funds.saved")
	p.log.Info("fund saved", "id", rec.ID, "name", rec.Name, "status", rec.Status)

	return nil
}

// wait blocks for a randomized delay in [minDelay, maxDelay] before every
// outbound request after the first, honoring cancellation.
func (p *Pipeline) wait(ctx context.Context) error {
	p.requests++
	if p.requests == 1 {
		return nil
	}

	d := p.minDelay
	if p.maxDelay > p.minDelay {
		d += time.Duration(p.jitter.Int63n(int64(p.maxDelay - p.minDelay)))
	}
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
