package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

// Config holds every tunable of the scraper. Values layer in order:
// defaults, HCL config file, environment (FONDOS_*). CLI flags override
// the loaded values on top of this.
type Config struct {
	BaseURL     string        `hcl:"base_url" env:"BASE_URL" default:"https://fondos.gob.cl/searchernew/"`
	OutputPath  string        `hcl:"output_path" env:"OUTPUT_PATH" default:"fondos.csv"`
	MaxPages    int           `hcl:"max_pages" env:"MAX_PAGES" default:"50"`
	MinDelay    time.Duration `hcl:"min_delay" env:"MIN_DELAY" default:"1s"`
	MaxDelay    time.Duration `hcl:"max_delay" env:"MAX_DELAY" default:"3s"`
	HTTPTimeout time.Duration `hcl:"http_timeout" env:"HTTP_TIMEOUT" default:"30s"`
	MaxRetries  int           `hcl:"max_retries" env:"MAX_RETRIES" default:"3"`
	RetryWait   time.Duration `hcl:"retry_wait" env:"RETRY_WAIT" default:"2s"`
	UserAgents  []string      `hcl:"user_agents" env:"USER_AGENTS"`
}

// defaultUserAgents are the browser identifiers rotated across requests.
// User-Agent strings contain commas, so they cannot live in a struct tag
// default and are filled in after loading instead.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36 Edg/91.0.864.59",
}

var (
	cfg  Config
	once sync.Once
)

// Get loads the configuration once and returns a copy.
func Get() Config {
	once.Do(func() {
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix: "FONDOS",
			Files:     []string{"./fondos.hcl", "$HOME/.config/fondos-scraper/fondos.hcl"},
			FileDecoders: map[string]aconfig.FileDecoder{
				".hcl": aconfighcl.New(),
			},
		})

		if err := loader.Load(); err != nil {
			slog.Error("failed to load config", "err", err)
		}

		if len(cfg.UserAgents) == 0 {
			cfg.UserAgents = defaultUserAgents
		}
	})

	return cfg
}
