package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when PERFMETRICS_CONFIG is unset.
const DefaultPath = "config/perfmetrics.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the metrics service.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Cache    Cache    `yaml:"cache"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Yahoo    Yahoo    `yaml:"yahoo"`
	Provider Provider `yaml:"provider"`
	Metrics  Metrics  `yaml:"metrics"`
	Refresh  Refresh  `yaml:"refresh"`
	Logging  Logging  `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Cache selects the metrics cache backend: memory, sqlite or postgres.
type Cache struct {
	Backend string `yaml:"backend"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Enabled reports whether credentials are configured.
func (a Alpaca) Enabled() bool {
	return a.APIKey != "" && a.APISecret != ""
}

// Yahoo configures the Yahoo Finance chart client.
type Yahoo struct {
	BaseURL  string `yaml:"base_url"`
	ProxyURL string `yaml:"proxy_url"`
}

// Provider controls the order and behaviour of the price-history providers.
type Provider struct {
	Order           []string `yaml:"order"`
	TimeoutSec      int      `yaml:"timeout_sec"`
	RetryAttempts   int      `yaml:"retry_attempts"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// Metrics parameterizes the computation.
type Metrics struct {
	RiskFreeRate *float64 `yaml:"risk_free_rate"`
	TopPriceMode string   `yaml:"top_price_mode"`
	LookbackDays int      `yaml:"lookback_days"`
	FoldSpot     *bool    `yaml:"fold_spot"`
	Timezone     string   `yaml:"timezone"`
}

// RiskFree returns the annual risk-free rate. An explicit 0 is kept; only an
// unset rate falls back to the default.
func (m Metrics) RiskFree() float64 {
	if m.RiskFreeRate == nil {
		return defaultRiskFreeRate
	}
	return *m.RiskFreeRate
}

// FoldSpotEnabled reports whether spot folding is on. It defaults to true.
func (m Metrics) FoldSpotEnabled() bool {
	return m.FoldSpot == nil || *m.FoldSpot
}

// Refresh configures scheduled batch refreshes.
type Refresh struct {
	BatchSize int      `yaml:"batch_size"`
	Schedule  string   `yaml:"schedule"`
	Symbols   []string `yaml:"symbols"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	defaultRiskFreeRate = 0.02
	minLookbackDays     = 120
)

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if len(cfg.Provider.Order) == 0 {
		cfg.Provider.Order = []string{"alpaca", "yahoo", "parquet"}
	}
	if cfg.Provider.TimeoutSec <= 0 {
		cfg.Provider.TimeoutSec = 30
	}
	if cfg.Provider.RetryAttempts <= 0 {
		cfg.Provider.RetryAttempts = 3
	}
	if cfg.Metrics.RiskFreeRate == nil {
		rate := defaultRiskFreeRate
		cfg.Metrics.RiskFreeRate = &rate
	}
	if cfg.Metrics.TopPriceMode == "" {
		cfg.Metrics.TopPriceMode = "high"
	}
	if cfg.Metrics.LookbackDays < minLookbackDays {
		cfg.Metrics.LookbackDays = minLookbackDays
	}
	if cfg.Metrics.Timezone == "" {
		cfg.Metrics.Timezone = "Local"
	}
	if cfg.Refresh.BatchSize <= 0 {
		cfg.Refresh.BatchSize = 5
	}
	if cfg.Refresh.Schedule == "" {
		cfg.Refresh.Schedule = "0 30 17 * * 1-5"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns $PERFMETRICS_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("PERFMETRICS_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
// A .env file in the working directory is loaded first when present. A
// missing config file is not an error: the environment and defaults alone
// produce a usable configuration.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("cache backend postgres requires storage.postgres_dsn or DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for _, name := range c.Provider.Order {
		switch name {
		case "alpaca", "yahoo", "parquet":
		default:
			return fmt.Errorf("unknown provider %q", name)
		}
	}
	switch strings.ToLower(c.Metrics.TopPriceMode) {
	case "high", "close":
	default:
		return fmt.Errorf("unknown top price mode %q", c.Metrics.TopPriceMode)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}

	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_FREE_RATE: %w", err)
		}
		cfg.Metrics.RiskFreeRate = &rate
	}

	if v := os.Getenv("REFRESH_SYMBOLS"); v != "" {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		cfg.Refresh.Symbols = symbols
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}
