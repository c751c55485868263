package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"memetrader/internal/indicator"
	"memetrader/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Infrastructure
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/prices.db"`

	// Upstream price API
	PriceFeedBaseURL    string        `envconfig:"PRICEFEED_BASE_URL" default:"https://api.dexscreener.com/latest"`
	PriceFeedAPIKey     string        `envconfig:"PRICEFEED_API_KEY"`
	PriceFeedTimeout    time.Duration `envconfig:"PRICEFEED_TIMEOUT" default:"10s"`
	PriceFeedMaxRetries uint64        `envconfig:"PRICEFEED_MAX_RETRIES" default:"3"`

	// Background refresh
	RefreshCron        string `envconfig:"REFRESH_CRON" default:"@every 1m"`
	RefreshConcurrency int    `envconfig:"REFRESH_CONCURRENCY" default:"4"`
	WatchlistFile      string `envconfig:"WATCHLIST_FILE" default:"watchlist.yaml"`

	// Indicator set, "TYPE:PERIOD,..." e.g. "MA:20,MA:50,EMA:12,EMA:26,RSI:14"
	IndicatorSpecs string `envconfig:"INDICATOR_CONFIGS"`

	Watchlist  []WatchEntry                `ignored:"true"`
	Indicators []indicator.IndicatorConfig `ignored:"true"`
}

// WatchEntry is a pair the refresher keeps warm, with the timeframes to fetch.
type WatchEntry struct {
	Pair       string            `yaml:"pair"`
	Timeframes []model.Timeframe `yaml:"-"`
	RawTFs     []string          `yaml:"timeframes"`
}

type watchlistFile struct {
	Pairs []WatchEntry `yaml:"pairs"`
}

// Load reads .env (if present), then environment variables, then the YAML
// watchlist, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	watchlist, err := LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		return nil, err
	}
	cfg.Watchlist = watchlist
	cfg.Indicators = ParseIndicatorSpecs(cfg.IndicatorSpecs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWatchlist parses the YAML watchlist. A missing file yields an empty list.
func LoadWatchlist(path string) ([]WatchEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return ParseWatchlist(data)
}

// ParseWatchlist decodes watchlist YAML. Entries without timeframes default to 24h.
func ParseWatchlist(data []byte) ([]WatchEntry, error) {
	var wf watchlistFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}
	for i := range wf.Pairs {
		e := &wf.Pairs[i]
		e.Pair = strings.TrimSpace(e.Pair)
		if e.Pair == "" {
			return nil, fmt.Errorf("watchlist entry %d: empty pair", i)
		}
		if len(e.RawTFs) == 0 {
			e.Timeframes = []model.Timeframe{model.Timeframe24h}
			continue
		}
		for _, raw := range e.RawTFs {
			tf, err := model.ParseTimeframe(raw)
			if err != nil {
				return nil, fmt.Errorf("watchlist entry %s: %w", e.Pair, err)
			}
			e.Timeframes = append(e.Timeframes, tf)
		}
	}
	return wf.Pairs, nil
}

// ParseIndicatorSpecs parses "TYPE:PERIOD,..." into []IndicatorConfig.
// Returns the default chart set if input is empty or nothing parses.
func ParseIndicatorSpecs(s string) []indicator.IndicatorConfig {
	if strings.TrimSpace(s) == "" {
		return indicator.DefaultConfigs
	}

	var configs []indicator.IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			continue
		}
		kind, err := model.ParseIndicatorKind(tokens[0])
		if err != nil {
			slog.Warn("[config] skipping indicator spec", "spec", part, "error", err)
			continue
		}
		period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
		if err != nil || period <= 0 {
			slog.Warn("[config] skipping indicator spec with invalid period", "spec", part)
			continue
		}
		configs = append(configs, indicator.IndicatorConfig{Kind: kind, Period: period})
	}
	if len(configs) == 0 {
		slog.Warn("[config] no valid indicator specs parsed, using defaults")
		return indicator.DefaultConfigs
	}
	return configs
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.PriceFeedBaseURL == "" {
		return fmt.Errorf("PRICEFEED_BASE_URL must not be empty")
	}
	if c.RefreshConcurrency < 1 {
		return fmt.Errorf("REFRESH_CONCURRENCY must be >= 1, got %d", c.RefreshConcurrency)
	}
	if _, err := CronParser.Parse(c.RefreshCron); err != nil {
		return fmt.Errorf("invalid REFRESH_CRON %q: %w", c.RefreshCron, err)
	}
	if err := indicator.ValidateConfigs(c.Indicators); err != nil {
		return fmt.Errorf("INDICATOR_CONFIGS: %w", err)
	}
	return nil
}

// CronParser accepts standard 5-field specs and descriptors like "@every 1m".
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
