// Package config holds downloader configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/marketreplay/go-tick-fetch/models"
	"gopkg.in/yaml.v3"
)

// Config holds settings for one download run.
type Config struct {
	// Target universe and output locations.
	UniverseFile string `yaml:"universe_file"`
	DataDir      string `yaml:"data_dir"`

	// Session endpoint candidates, tried in order.
	Servers []models.Server `yaml:"servers"`

	// Paginated session fetch.
	MaxWorkers     int           `yaml:"max_workers"`
	FloorWorkers   int           `yaml:"floor_workers"`
	BatchSize      int           `yaml:"batch_size"`
	MaxRetry       int           `yaml:"max_retry"`
	RetryCount     int           `yaml:"retry_count"`
	RetryPause     time.Duration `yaml:"retry_pause"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// Share of no-data outcomes in the first round above which remaining
	// retry rounds are skipped as a date-level condition.
	NoDataSkipRatio float64 `yaml:"no_data_skip_ratio"`

	// Tick artifact compression: gzip or none.
	Compression string `yaml:"compression"`

	// Point-lookup quote endpoint.
	QuoteURL        string        `yaml:"quote_url"`
	QuoteWorkers    int           `yaml:"quote_workers"`
	QuoteTimeout    time.Duration `yaml:"quote_timeout"`
	QuoteRetryMax   int           `yaml:"quote_retry_max"`
	QuoteCacheTTL   time.Duration `yaml:"quote_cache_ttl"`
	QuoteCacheSize  int           `yaml:"quote_cache_size"`
	UserAgent       string        `yaml:"user_agent"`

	// Optional Postgres tick sink. Empty DSN disables it.
	PostgresDSN string `yaml:"postgres_dsn"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults for a full-universe run.
func DefaultConfig() *Config {
	return &Config{
		UniverseFile: "data/all_stocks.csv",
		DataDir:      "data",
		Servers: []models.Server{
			{Host: "121.37.207.165", Port: 7709},
			{Host: "202.108.253.131", Port: 7709},
			{Host: "218.108.47.69", Port: 7709},
		},
		MaxWorkers:      15,
		FloorWorkers:    5,
		BatchSize:       2000,
		MaxRetry:        3,
		RetryCount:      3,
		RetryPause:      time.Second,
		ProbeTimeout:    2 * time.Second,
		DialTimeout:     5 * time.Second,
		AttemptTimeout:  30 * time.Second,
		NoDataSkipRatio: 0.9,
		Compression:     "gzip",
		QuoteURL:        "http://push2.eastmoney.com/api/qt/stock/get",
		QuoteWorkers:    50,
		QuoteTimeout:    10 * time.Second,
		QuoteRetryMax:   2,
		QuoteCacheTTL:   60 * time.Second,
		QuoteCacheSize:  1000,
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// LoadFile overlays YAML settings from path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.UniverseFile == "" {
		return fmt.Errorf("universe file cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server is required")
	}
	for i, srv := range c.Servers {
		if srv.Host == "" {
			return fmt.Errorf("server %d: host cannot be empty", i)
		}
		if srv.Port <= 0 || srv.Port > 65535 {
			return fmt.Errorf("server %d: invalid port %d", i, srv.Port)
		}
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive")
	}
	if c.FloorWorkers <= 0 {
		return fmt.Errorf("floor workers must be positive")
	}
	if c.FloorWorkers > c.MaxWorkers {
		return fmt.Errorf("floor workers (%d) cannot exceed max workers (%d)", c.FloorWorkers, c.MaxWorkers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max retry cannot be negative")
	}
	if c.RetryCount <= 0 {
		return fmt.Errorf("retry count must be positive")
	}
	if c.RetryPause < 0 {
		return fmt.Errorf("retry pause cannot be negative")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive")
	}
	if c.NoDataSkipRatio <= 0 || c.NoDataSkipRatio > 1 {
		return fmt.Errorf("no data skip ratio must be in (0, 1]")
	}
	if c.Compression != "gzip" && c.Compression != "none" {
		return fmt.Errorf("compression must be gzip or none")
	}
	if c.QuoteURL == "" {
		return fmt.Errorf("quote URL cannot be empty")
	}
	if c.QuoteWorkers <= 0 {
		return fmt.Errorf("quote workers must be positive")
	}
	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("quote timeout must be positive")
	}
	if c.QuoteRetryMax < 0 {
		return fmt.Errorf("quote retry max cannot be negative")
	}
	if c.QuoteCacheSize <= 0 {
		return fmt.Errorf("quote cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// EnvInt reads an integer environment variable. The second return value
// reports whether the variable was set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return value, true, nil
}

// EnvString reads a string environment variable.
func EnvString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
