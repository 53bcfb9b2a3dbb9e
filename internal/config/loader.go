package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SCALPD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SCALPD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "SCALPD_FEED_URL")
	setDuration(&cfg.Feed.ConnectTimeout, "SCALPD_FEED_CONNECT_TIMEOUT")
	setInt(&cfg.Feed.HistoryLen, "SCALPD_FEED_HISTORY_LEN")
	setInt(&cfg.Feed.MaxReconnectAttempts, "SCALPD_FEED_MAX_RECONNECT_ATTEMPTS")

	// ── Fees ──
	setFloat64(&cfg.Fees.TakerFee, "SCALPD_FEES_TAKER_FEE")
	setFloat64(&cfg.Fees.TypicalSpread, "SCALPD_FEES_TYPICAL_SPREAD")
	setFloat64(&cfg.Fees.GasUSD, "SCALPD_FEES_GAS_USD")
	setFloat64(&cfg.Fees.SlippageLow, "SCALPD_FEES_SLIPPAGE_LOW")
	setFloat64(&cfg.Fees.SlippageMed, "SCALPD_FEES_SLIPPAGE_MEDIUM")
	setFloat64(&cfg.Fees.SlippageHigh, "SCALPD_FEES_SLIPPAGE_HIGH")

	// ── Trading ──
	setFloat64(&cfg.Trading.StartingBankroll, "SCALPD_TRADING_STARTING_BANKROLL")
	setFloat64(&cfg.Trading.TakeProfitPct, "SCALPD_TRADING_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Trading.StopLossPct, "SCALPD_TRADING_STOP_LOSS_PCT")
	setFloat64(&cfg.Trading.ConfidenceBaseline, "SCALPD_TRADING_CONFIDENCE_BASELINE")
	setFloat64(&cfg.Trading.LeverageFactor, "SCALPD_TRADING_LEVERAGE_FACTOR")
	setFloat64(&cfg.Trading.RedZoneThreshold, "SCALPD_TRADING_RED_ZONE_THRESHOLD")
	setInt(&cfg.Trading.TimerSeconds, "SCALPD_TRADING_TIMER_SECONDS")
	setDuration(&cfg.Trading.RefreshInterval, "SCALPD_TRADING_REFRESH_INTERVAL")

	// ── Entry ──
	setFloat64(&cfg.Entry.MinExpectedProfit, "SCALPD_ENTRY_MIN_EXPECTED_PROFIT")
	setFloat64(&cfg.Entry.MinEdgeOverFees, "SCALPD_ENTRY_MIN_EDGE_OVER_FEES")
	setFloat64(&cfg.Entry.MinConfidence, "SCALPD_ENTRY_MIN_CONFIDENCE")

	// ── Readiness ──
	setInt(&cfg.Readiness.MinTrades, "SCALPD_READINESS_MIN_TRADES")
	setFloat64(&cfg.Readiness.MinWinRate, "SCALPD_READINESS_MIN_WIN_RATE")
	setFloat64(&cfg.Readiness.MinProfitFactor, "SCALPD_READINESS_MIN_PROFIT_FACTOR")
	setInt(&cfg.Readiness.MinConsecutiveWins, "SCALPD_READINESS_MIN_CONSECUTIVE_WINS")
	setFloat64(&cfg.Readiness.MaxDrawdown, "SCALPD_READINESS_MAX_DRAWDOWN")

	// ── Simulation ──
	setFloat64(&cfg.Simulation.StepLow, "SCALPD_SIMULATION_STEP_LOW")
	setFloat64(&cfg.Simulation.StepMed, "SCALPD_SIMULATION_STEP_MEDIUM")
	setFloat64(&cfg.Simulation.StepHigh, "SCALPD_SIMULATION_STEP_HIGH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SCALPD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SCALPD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SCALPD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SCALPD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SCALPD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SCALPD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SCALPD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SCALPD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SCALPD_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SCALPD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SCALPD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SCALPD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SCALPD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SCALPD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SCALPD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SCALPD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SCALPD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SCALPD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SCALPD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SCALPD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SCALPD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SCALPD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SCALPD_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "SCALPD_S3_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SCALPD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SCALPD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SCALPD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SCALPD_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "SCALPD_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "SCALPD_METRICS_PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "SCALPD_MODE")
	setStr(&cfg.LogLevel, "SCALPD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
