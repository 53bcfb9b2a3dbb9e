// Package config defines the top-level configuration for the scalping engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SCALPD_* environment variables.
type Config struct {
	Feed       FeedConfig       `toml:"feed"`
	Fees       FeesConfig       `toml:"fees"`
	Trading    TradingConfig    `toml:"trading"`
	Entry      EntryConfig      `toml:"entry"`
	Readiness  ReadinessConfig  `toml:"readiness"`
	Simulation SimulationConfig `toml:"simulation"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// FeedConfig holds the market-data WebSocket parameters.
type FeedConfig struct {
	URL                  string   `toml:"url"`
	ConnectTimeout       duration `toml:"connect_timeout"`
	HistoryLen           int      `toml:"history_len"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
}

// FeesConfig holds the per-tier fee assumptions.
type FeesConfig struct {
	TakerFee      float64 `toml:"taker_fee"`
	TypicalSpread float64 `toml:"typical_spread"`
	GasUSD        float64 `toml:"gas_usd"`
	SlippageLow   float64 `toml:"slippage_low"`
	SlippageMed   float64 `toml:"slippage_medium"`
	SlippageHigh  float64 `toml:"slippage_high"`
}

// TradingConfig holds the lifecycle-engine parameters.
type TradingConfig struct {
	StartingBankroll   float64  `toml:"starting_bankroll"`
	TakeProfitPct      float64  `toml:"take_profit_pct"`
	StopLossPct        float64  `toml:"stop_loss_pct"`
	ConfidenceBaseline float64  `toml:"confidence_baseline"`
	LeverageFactor     float64  `toml:"leverage_factor"`
	RedZoneThreshold   float64  `toml:"red_zone_threshold"`
	TimerSeconds       int      `toml:"timer_seconds"`
	RefreshInterval    duration `toml:"refresh_interval"`
}

// EntryConfig holds the pre-trade validator thresholds.
type EntryConfig struct {
	MinExpectedProfit float64 `toml:"min_expected_profit"`
	MinEdgeOverFees   float64 `toml:"min_edge_over_fees"`
	MinConfidence     float64 `toml:"min_confidence"`
}

// ReadinessConfig holds the live-promotion audit thresholds.
type ReadinessConfig struct {
	MinTrades          int     `toml:"min_trades"`
	MinWinRate         float64 `toml:"min_win_rate"`
	MinProfitFactor    float64 `toml:"min_profit_factor"`
	MinConsecutiveWins int     `toml:"min_consecutive_wins"`
	MaxDrawdown        float64 `toml:"max_drawdown"`
}

// SimulationConfig holds the fallback price-simulator step sizes.
type SimulationConfig struct {
	StepLow  float64 `toml:"step_low"`
	StepMed  float64 `toml:"step_medium"`
	StepHigh float64 `toml:"step_high"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for outcome
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig holds the Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values the engine was tuned
// with. These match config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:                  "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ConnectTimeout:       duration{10 * time.Second},
			HistoryLen:           60,
			MaxReconnectAttempts: 5,
		},
		Fees: FeesConfig{
			TakerFee:      0.02,
			TypicalSpread: 0.01,
			GasUSD:        0.01,
			SlippageLow:   0.005,
			SlippageMed:   0.01,
			SlippageHigh:  0.02,
		},
		Trading: TradingConfig{
			StartingBankroll:   1000,
			TakeProfitPct:      0.15,
			StopLossPct:        0.12,
			ConfidenceBaseline: 75,
			LeverageFactor:     1.5,
			RedZoneThreshold:   -100,
			TimerSeconds:       20,
			RefreshInterval:    duration{time.Second},
		},
		Entry: EntryConfig{
			MinExpectedProfit: 0.05,
			MinEdgeOverFees:   0.03,
			MinConfidence:     75,
		},
		Readiness: ReadinessConfig{
			MinTrades:          50,
			MinWinRate:         0.55,
			MinProfitFactor:    1.2,
			MinConsecutiveWins: 3,
			MaxDrawdown:        0.20,
		},
		Simulation: SimulationConfig{
			StepLow:  0.003,
			StepMed:  0.006,
			StepHigh: 0.01,
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "scalpd",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "scalpd-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_closed", "red_zone", "error"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"paper": true,
	"audit": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, audit)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed — required for live trading.
	if c.Mode == "trade" {
		if c.Feed.URL == "" {
			errs = append(errs, "feed: url must not be empty for mode trade")
		}
	}
	if c.Feed.HistoryLen <= 0 {
		errs = append(errs, "feed: history_len must be positive")
	}
	if c.Feed.MaxReconnectAttempts <= 0 {
		errs = append(errs, "feed: max_reconnect_attempts must be positive")
	}

	// Fees
	if c.Fees.TakerFee < 0 || c.Fees.TakerFee >= 1 {
		errs = append(errs, fmt.Sprintf("fees: taker_fee must be in [0, 1), got %v", c.Fees.TakerFee))
	}
	if c.Fees.SlippageLow < 0 || c.Fees.SlippageMed < 0 || c.Fees.SlippageHigh < 0 {
		errs = append(errs, "fees: slippage rates must not be negative")
	}

	// Trading
	if c.Trading.StartingBankroll <= 0 {
		errs = append(errs, "trading: starting_bankroll must be positive")
	}
	if c.Trading.TakeProfitPct <= 0 {
		errs = append(errs, "trading: take_profit_pct must be positive")
	}
	if c.Trading.StopLossPct <= 0 {
		errs = append(errs, "trading: stop_loss_pct must be positive")
	}
	if c.Trading.TimerSeconds <= 0 {
		errs = append(errs, "trading: timer_seconds must be positive")
	}
	if c.Trading.RefreshInterval.Duration <= 0 {
		errs = append(errs, "trading: refresh_interval must be positive")
	}
	if c.Trading.RedZoneThreshold >= 0 {
		errs = append(errs, "trading: red_zone_threshold must be negative")
	}

	// Entry
	if c.Entry.MinConfidence < 0 || c.Entry.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("entry: min_confidence must be 0-100, got %v", c.Entry.MinConfidence))
	}

	// Readiness
	if c.Readiness.MinTrades < 1 {
		errs = append(errs, "readiness: min_trades must be >= 1")
	}
	if c.Readiness.MinWinRate < 0 || c.Readiness.MinWinRate > 1 {
		errs = append(errs, "readiness: min_win_rate must be in [0, 1]")
	}
	if c.Readiness.MaxDrawdown <= 0 || c.Readiness.MaxDrawdown > 1 {
		errs = append(errs, "readiness: max_drawdown must be in (0, 1]")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when s3 is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when s3 is enabled")
		}
	}

	// Metrics
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Sprintf("metrics: port must be 1-65535, got %d", c.Metrics.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
