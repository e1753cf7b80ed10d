// Package config loads the pipeline configuration from YAML or JSON and the
// brokerage credentials from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete pipeline configuration.
type Config struct {
	Store   StoreConfig   `json:"store" yaml:"store"`
	Data    DataConfig    `json:"data" yaml:"data"`
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Serve   ServeConfig   `json:"serve" yaml:"serve"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

// DataConfig tunes ingestion.
type DataConfig struct {
	Timeframe     string `json:"timeframe" yaml:"timeframe"`
	StartDate     string `json:"start_date" yaml:"start_date"` // RFC3339, first backfill boundary
	RatePerMinute int    `json:"rate_per_minute" yaml:"rate_per_minute"`

	// Watchlist maps each traded symbol to the social search keywords used to
	// find posts about it.
	Watchlist map[string][]string `json:"watchlist" yaml:"watchlist"`
}

// TradingConfig tunes the decision loop and reconciler.
type TradingConfig struct {
	Paper bool `json:"paper" yaml:"paper"`

	// DryRun trades against the in-memory paper engine instead of the
	// brokerage API; no credentials needed.
	DryRun bool    `json:"dry_run" yaml:"dry_run"`
	Cash   float64 `json:"cash" yaml:"cash"` // starting cash for dry runs

	MaxShares int64 `json:"max_shares" yaml:"max_shares"`

	// EntryThreshold and ShortThreshold are tuned separately; neither is
	// derived from the other.
	EntryThreshold float64 `json:"entry_threshold" yaml:"entry_threshold"`
	ShortThreshold float64 `json:"short_threshold" yaml:"short_threshold"`

	Interval  string `json:"interval" yaml:"interval"` // e.g. "60s"
	ModelFile string `json:"model_file" yaml:"model_file"`
}

// ServeConfig tunes the merged-row replay server.
type ServeConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Since    string `json:"since" yaml:"since"`       // RFC3339, replay start
	Interval string `json:"interval" yaml:"interval"` // pacing between rows
}

// LoadFromFile loads configuration from a file (YAML or JSON based on content).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Data.Timeframe == "" {
		return fmt.Errorf("data.timeframe is required")
	}
	if _, err := time.Parse(time.RFC3339, c.Data.StartDate); err != nil {
		return fmt.Errorf("data.start_date must be RFC3339: %w", err)
	}
	if c.Data.RatePerMinute <= 0 {
		return fmt.Errorf("data.rate_per_minute must be positive")
	}
	if len(c.Data.Watchlist) == 0 {
		return fmt.Errorf("data.watchlist must name at least one symbol")
	}
	for symbol, keywords := range c.Data.Watchlist {
		if len(keywords) == 0 {
			return fmt.Errorf("data.watchlist.%s needs at least one keyword", symbol)
		}
	}
	if c.Trading.MaxShares <= 0 {
		return fmt.Errorf("trading.max_shares must be positive")
	}
	if c.Trading.EntryThreshold <= 0 {
		return fmt.Errorf("trading.entry_threshold must be positive")
	}
	if c.Trading.ShortThreshold >= 0 {
		return fmt.Errorf("trading.short_threshold must be negative")
	}
	if _, err := time.ParseDuration(c.Trading.Interval); err != nil {
		return fmt.Errorf("trading.interval: %w", err)
	}
	if c.Trading.DryRun && c.Trading.Cash <= 0 {
		return fmt.Errorf("trading.cash must be positive for dry runs")
	}
	if c.Serve.Addr == "" {
		return fmt.Errorf("serve.addr is required")
	}
	if _, err := time.Parse(time.RFC3339, c.Serve.Since); err != nil {
		return fmt.Errorf("serve.since must be RFC3339: %w", err)
	}
	if _, err := time.ParseDuration(c.Serve.Interval); err != nil {
		return fmt.Errorf("serve.interval: %w", err)
	}
	return nil
}

// Symbols returns the watchlist symbols, sorted for deterministic iteration.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Data.Watchlist))
	for symbol := range c.Data.Watchlist {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// TradingInterval returns the parsed decision loop interval. Call Validate
// first.
func (c *Config) TradingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.Interval)
	return d
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "data/sentitrade.db"},
		Data: DataConfig{
			Timeframe:     "15Min",
			StartDate:     "2024-10-01T00:00:00Z",
			RatePerMinute: 200,
			Watchlist: map[string][]string{
				"AAPL":  {"Apple"},
				"MSFT":  {"Microsoft"},
				"GOOGL": {"Google"},
				"AMZN":  {"Amazon"},
				"TSLA":  {"Tesla"},
				"NVDA":  {"Nvidia"},
			},
		},
		Trading: TradingConfig{
			Paper:          true,
			DryRun:         false,
			Cash:           100000,
			MaxShares:      100,
			EntryThreshold: 0.10,
			ShortThreshold: -0.10,
			Interval:       "60s",
			ModelFile:      "model/linear.json",
		},
		Serve: ServeConfig{
			Addr:     "127.0.0.1:9090",
			Since:    "2025-02-10T00:00:00Z",
			Interval: "500ms",
		},
	}
}

// Secrets holds the brokerage credentials.
type Secrets struct {
	APIKey    string
	APISecret string
}

// LoadSecrets reads credentials from envPath (a dotenv file; "" means
// ~/.secrets/.env) merged with the process environment. Missing credentials
// are a fatal startup error for commands that need the brokerage.
func LoadSecrets(envPath string) (Secrets, error) {
	if envPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			envPath = filepath.Join(home, ".secrets", ".env")
		}
	}
	if envPath != "" {
		// Optional: the process environment may already carry the keys.
		_ = godotenv.Load(envPath)
	}

	s := Secrets{
		APIKey:    os.Getenv("ALPACA_API_KEY"),
		APISecret: os.Getenv("ALPACA_API_SECRET"),
	}
	if s.APIKey == "" || s.APISecret == "" {
		return Secrets{}, fmt.Errorf("ALPACA_API_KEY and ALPACA_API_SECRET must be set (env or %s)", envPath)
	}
	return s, nil
}
