// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"alpha-finder/internal/milestone"
)

// Config holds all application configuration.
type Config struct {
	Solana struct {
		RPCEndpoint string        `yaml:"rpc_endpoint"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxRetries  int           `yaml:"max_retries"`
	} `yaml:"solana"`
	MarketData struct {
		BaseURL    string  `yaml:"base_url"`
		APIKey     string  `yaml:"api_key"`
		RatePerSec float64 `yaml:"rate_per_sec"`
		Interval   string  `yaml:"interval"`
	} `yaml:"market_data"`
	Storage struct {
		UseMemory     bool   `yaml:"use_memory"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Scoring struct {
		Cron            string        `yaml:"cron"`
		Workers         int           `yaml:"workers"`
		LowThreshold    float64       `yaml:"low_threshold"`
		HighThreshold   float64       `yaml:"high_threshold"`
		RunnerThreshold float64       `yaml:"runner_threshold"`
		Lookback        time.Duration `yaml:"lookback"`
	} `yaml:"scoring"`
	WalletState struct {
		RatePerSec  float64       `yaml:"rate_per_sec"`
		TripAfter   uint32        `yaml:"trip_after"`
		OpenTimeout time.Duration `yaml:"open_timeout"`
	} `yaml:"wallet_state"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`
}

// Load reads .env (if present), then the YAML file at path (if present),
// then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Solana.RPCEndpoint, "SOLANA_RPC_ENDPOINT")
	setString(&c.MarketData.BaseURL, "MARKET_DATA_URL")
	setString(&c.MarketData.APIKey, "MARKET_DATA_API_KEY")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Scoring.Cron, "SCORING_CRON")
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("USE_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USE_MEMORY: %w", err)
		}
		c.Storage.UseMemory = b
	}
	if v := os.Getenv("SCORING_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCORING_WORKERS: %w", err)
		}
		c.Scoring.Workers = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Solana.Timeout == 0 {
		c.Solana.Timeout = 30 * time.Second
	}
	if c.Solana.MaxRetries == 0 {
		c.Solana.MaxRetries = 3
	}
	if c.MarketData.BaseURL == "" {
		c.MarketData.BaseURL = "https://public-api.birdeye.so"
	}
	if c.MarketData.RatePerSec == 0 {
		c.MarketData.RatePerSec = 5
	}
	if c.MarketData.Interval == "" {
		c.MarketData.Interval = "1m"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "alphafinder"
	}
	if c.Scoring.Cron == "" {
		c.Scoring.Cron = "0 */30 * * * *"
	}
	if c.Scoring.Workers == 0 {
		c.Scoring.Workers = 8
	}
	if c.Scoring.LowThreshold == 0 {
		c.Scoring.LowThreshold = 200_000
	}
	if c.Scoring.HighThreshold == 0 {
		c.Scoring.HighThreshold = 500_000
	}
	if c.Scoring.RunnerThreshold == 0 {
		c.Scoring.RunnerThreshold = 1_000_000
	}
	if c.Scoring.Lookback == 0 {
		c.Scoring.Lookback = 90 * 24 * time.Hour
	}
	if c.WalletState.RatePerSec == 0 {
		c.WalletState.RatePerSec = 10
	}
	if c.WalletState.TripAfter == 0 {
		c.WalletState.TripAfter = 5
	}
	if c.WalletState.OpenTimeout == 0 {
		c.WalletState.OpenTimeout = 30 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.Solana.RPCEndpoint == "" {
		errs = append(errs, "solana.rpc_endpoint is required")
	}
	if c.MarketData.APIKey == "" {
		errs = append(errs, "market_data.api_key is required")
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, "storage.postgres_dsn is required (or set storage.use_memory)")
	}
	if c.Scoring.Workers < 1 {
		errs = append(errs, "scoring.workers must be positive")
	}
	if c.Scoring.LowThreshold <= 0 || c.Scoring.HighThreshold < c.Scoring.LowThreshold {
		errs = append(errs, "scoring thresholds must satisfy 0 < low_threshold <= high_threshold")
	}
	if c.Scoring.RunnerThreshold < c.Scoring.HighThreshold {
		errs = append(errs, "scoring.runner_threshold must be >= high_threshold")
	}
	if _, err := CronParser.Parse(c.Scoring.Cron); err != nil {
		errs = append(errs, fmt.Sprintf("scoring.cron: %v", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, "log.format must be console or json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CronParser parses schedules with a leading seconds field.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Thresholds returns the early/late market-cap thresholds.
func (c *Config) Thresholds() milestone.Thresholds {
	return milestone.Thresholds{
		Low:  decimal.NewFromFloat(c.Scoring.LowThreshold),
		High: decimal.NewFromFloat(c.Scoring.HighThreshold),
	}
}

// RunnerThreshold returns the ATH market cap a token needs to register.
func (c *Config) RunnerThreshold() decimal.Decimal {
	return decimal.NewFromFloat(c.Scoring.RunnerThreshold)
}
