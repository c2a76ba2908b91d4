// Package config loads the maestro YAML configuration with environment
// variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the maestro platform.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Indicator Indicator `yaml:"indicator"`
	Backtest  Backtest  `yaml:"backtest"`
	Logging   Logging   `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Indicator configures the external indicator-calculation service.
type Indicator struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Backtest holds simulation and concurrency parameters.
type Backtest struct {
	Benchmark        string `yaml:"benchmark"`
	MaxFetchWorkers  int    `yaml:"max_fetch_workers"`
	IndicatorWorkers int    `yaml:"indicator_workers"`
	RateLimitPerMin  int    `yaml:"rate_limit_per_min"`
	BatchChunkSize   int    `yaml:"batch_chunk_size"`
	BatchMaxWorkers  int    `yaml:"batch_max_workers"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("INDICATOR_URL"); v != "" {
		cfg.Indicator.BaseURL = v
	}
	if v := os.Getenv("INDICATOR_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Indicator.TimeoutSeconds = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Indicator.BaseURL == "" {
		cfg.Indicator.BaseURL = "http://localhost:8001"
	}
	if cfg.Indicator.TimeoutSeconds <= 0 {
		cfg.Indicator.TimeoutSeconds = 30
	}
	if cfg.Backtest.MaxFetchWorkers <= 0 {
		cfg.Backtest.MaxFetchWorkers = 4
	}
	if cfg.Backtest.IndicatorWorkers <= 0 {
		cfg.Backtest.IndicatorWorkers = 4
	}
	if cfg.Backtest.RateLimitPerMin <= 0 {
		cfg.Backtest.RateLimitPerMin = 200
	}
	if cfg.Backtest.BatchChunkSize <= 0 {
		cfg.Backtest.BatchChunkSize = 8
	}
	if cfg.Backtest.BatchMaxWorkers <= 0 {
		cfg.Backtest.BatchMaxWorkers = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
