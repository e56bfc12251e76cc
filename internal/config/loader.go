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
// built-in defaults, applies EQBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known EQBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.Kind, "EQBOT_BROKER_KIND")
	setStr(&cfg.Broker.BridgeURL, "EQBOT_BROKER_BRIDGE_URL")
	setStr(&cfg.Broker.StreamURL, "EQBOT_BROKER_STREAM_URL")
	setStr(&cfg.Broker.APIKey, "EQBOT_BROKER_API_KEY")
	setStr(&cfg.Broker.APISecret, "EQBOT_BROKER_API_SECRET")
	setStr(&cfg.Broker.Account, "EQBOT_BROKER_ACCOUNT")
	setDuration(&cfg.Broker.Timeout, "EQBOT_BROKER_TIMEOUT")
	setStr(&cfg.Broker.EncryptedSecretPath, "EQBOT_BROKER_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Broker.SecretPassword, "EQBOT_BROKER_SECRET_PASSWORD")

	// ── Trading ──
	setStr(&cfg.Trading.SessionOpen, "EQBOT_TRADING_SESSION_OPEN")
	setStr(&cfg.Trading.SessionClose, "EQBOT_TRADING_SESSION_CLOSE")
	setStr(&cfg.Trading.Timezone, "EQBOT_TRADING_TIMEZONE")
	setDuration(&cfg.Trading.TickWait, "EQBOT_TRADING_TICK_WAIT")
	setDuration(&cfg.Trading.IdleInterval, "EQBOT_TRADING_IDLE_INTERVAL")
	setDuration(&cfg.Trading.SettleDelay, "EQBOT_TRADING_SETTLE_DELAY")
	setDuration(&cfg.Trading.OrderGap, "EQBOT_TRADING_ORDER_GAP")
	setDuration(&cfg.Trading.RefreshInterval, "EQBOT_TRADING_REFRESH_INTERVAL")
	setDuration(&cfg.Trading.JoinTimeout, "EQBOT_TRADING_JOIN_TIMEOUT")
	setBool(&cfg.Trading.AutoStart, "EQBOT_TRADING_AUTO_START")
	setStr(&cfg.Trading.SymbolsFile, "EQBOT_TRADING_SYMBOLS_FILE")
	setStringSlice(&cfg.Trading.Symbols, "EQBOT_TRADING_SYMBOLS")
	setInt(&cfg.Trading.OrderRateLimit, "EQBOT_TRADING_ORDER_RATE_LIMIT")
	setDuration(&cfg.Trading.OrderRateWindow, "EQBOT_TRADING_ORDER_RATE_WINDOW")

	// ── Paper ──
	setInt64(&cfg.Paper.Cash, "EQBOT_PAPER_CASH")
	setFloat64(&cfg.Paper.StepPct, "EQBOT_PAPER_STEP_PCT")
	setDuration(&cfg.Paper.TickInterval, "EQBOT_PAPER_TICK_INTERVAL")
	setStringSlice(&cfg.Paper.KOSDAQ, "EQBOT_PAPER_KOSDAQ")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "EQBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "EQBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "EQBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "EQBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EQBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EQBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EQBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EQBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EQBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EQBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EQBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EQBOT_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.SymbolConfigs, "EQBOT_POSTGRES_SYMBOL_CONFIGS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EQBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EQBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EQBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EQBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EQBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EQBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EQBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.TickTTL, "EQBOT_REDIS_TICK_TTL")
	setInt(&cfg.Redis.StreamMaxLen, "EQBOT_REDIS_STREAM_MAX_LEN")
	setBool(&cfg.Redis.SessionLock, "EQBOT_REDIS_SESSION_LOCK")
	setStr(&cfg.Redis.KeyPrefix, "EQBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EQBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EQBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EQBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EQBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EQBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EQBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EQBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EQBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "EQBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "EQBOT_ARCHIVE_INTERVAL")
	setBool(&cfg.Archive.Purge, "EQBOT_ARCHIVE_PURGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "EQBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "EQBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "EQBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "EQBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "EQBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EQBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EQBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EQBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EQBOT_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "EQBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Path, "EQBOT_METRICS_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "EQBOT_MODE")
	setStr(&cfg.LogLevel, "EQBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
