package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mauriciolorca/fondos-scraper/internal/config"
	"github.com/mauriciolorca/fondos-scraper/internal/logger"
	"github.com/mauriciolorca/fondos-scraper/internal/pipeline"
	"github.com/mauriciolorca/fondos-scraper/internal/scraper"
	"github.com/mauriciolorca/fondos-scraper/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagOutput       string
	flagMaxPages     int
	flagMinDelay     time.Duration
	flagMaxDelay     time.Duration
	flagSkipExisting bool
	flagFormat       string
	flagVerbose      bool
)

// NewRootCmd creates the root command. Flag defaults come from the loaded
// configuration, so file and environment settings show up in --help.
func NewRootCmd() *cobra.Command {
	cfg := config.Get()

	cmd := &cobra.Command{
		Use:   "fondos-scraper",
		Short: "Extract public fund announcements from fondos.gob.cl into a CSV file",
		Long: `A scraper for the fondos.gob.cl fund searcher.
Walks the paginated listing, fetches each fund's detail page, and appends
one CSV row per fund. Rows are flushed as they are extracted, so a partial
run still leaves usable output.`,
		RunE: runScrape,
	}

	cmd.Flags().StringVar(&flagOutput, "output", cfg.OutputPath, "Output CSV path")
	cmd.Flags().IntVar(&flagMaxPages, "max-pages", cfg.MaxPages, "Maximum listing pages to walk")
	cmd.Flags().DurationVar(&flagMinDelay, "min-delay", cfg.MinDelay, "Minimum delay between requests")
	cmd.Flags().DurationVar(&flagMaxDelay, "max-delay", cfg.MaxDelay, "Maximum delay between requests")
	cmd.Flags().BoolVar(&flagSkipExisting, "skip-existing", false, "Skip funds whose URL is already in the output file")
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Summary format: text or json")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	return cmd
}

// runScrape is the main command logic.
func runScrape(cmd *cobra.Command, args []string) error {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}
	if flagMaxDelay < flagMinDelay {
		return fmt.Errorf("--max-delay must not be less than --min-delay")
	}

	cfg := config.Get()
	log := logger.New(os.Stderr, flagVerbose)
	metrics := logger.NewMetrics()

	sc, err := scraper.New(scraper.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.HTTPTimeout,
		UserAgents: cfg.UserAgents,
		MaxRetries: cfg.MaxRetries,
		RetryWait:  cfg.RetryWait,
		Logger:     log,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("initializing scraper: %w", err)
	}

	var skip map[string]bool
	if flagSkipExisting {
		skip, err = storage.ExistingURLs(flagOutput)
		if err != nil {
			return fmt.Errorf("scanning existing output: %w", err)
		}
		log.Info("loaded existing output", "path", flagOutput, "urls", len(skip))
	}

	sink, err := storage.Open(flagOutput)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	defer sink.Close()

	log.Info("starting extraction", "base_url", cfg.BaseURL, "output", flagOutput)
	start := time.Now()

	p := pipeline.New(pipeline.Options{
		Scraper:  sc,
		Sink:     sink,
		Logger:   log,
		Metrics:  metrics,
		MaxPages: flagMaxPages,
		MinDelay: flagMinDelay,
		MaxDelay: flagMaxDelay,
		SkipURLs: skip,
	})

	res, err := p.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("extraction aborted: %w", err)
	}

	if flagVerbose {
		log.Debug("run metrics", "snapshot", metrics.Snapshot())
	}

	summary := &Summary{
		FinishedAt:   time.Now().UTC(),
		Output:       flagOutput,
		PagesFetched: res.PagesFetched,
		PagesFailed:  res.PagesFailed,
		FundsSaved:   res.FundsSaved,
		FundsFailed:  res.FundsFailed,
		FundsSkipped: res.FundsSkipped,
		FailedURLs:   res.FailedURLs,
		Duration:     time.Since(start),
	}

	return WriteSummary(os.Stdout, summary, format)
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
