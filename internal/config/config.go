// Package config defines the top-level configuration for the equity bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EQBOT_* environment variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Trading  TradingConfig  `toml:"trading"`
	Paper    PaperConfig    `toml:"paper"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig selects and authenticates the brokerage adapter.
type BrokerConfig struct {
	// Kind is "paper" or "bridge".
	Kind      string   `toml:"kind"`
	BridgeURL string   `toml:"bridge_url"`
	StreamURL string   `toml:"stream_url"`
	APIKey    string   `toml:"api_key"`
	APISecret string   `toml:"api_secret"`
	Account   string   `toml:"account"`
	Timeout   duration `toml:"timeout"`
	// EncryptedSecretPath points at a secret file written by
	// "equityctl secret encrypt"; SecretPassword unlocks it.
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
}

// TradingConfig holds the engine and supervisor timing and the symbol set.
type TradingConfig struct {
	SessionOpen     string   `toml:"session_open"`
	SessionClose    string   `toml:"session_close"`
	Timezone        string   `toml:"timezone"`
	TickWait        duration `toml:"tick_wait"`
	IdleInterval    duration `toml:"idle_interval"`
	SettleDelay     duration `toml:"settle_delay"`
	OrderGap        duration `toml:"order_gap"`
	RefreshInterval duration `toml:"refresh_interval"`
	JoinTimeout     duration `toml:"join_timeout"`
	AutoStart       bool     `toml:"auto_start"`
	// SymbolsFile is the JSON or YAML per-symbol rule file. Ignored when
	// symbol configs are kept in Postgres.
	SymbolsFile string `toml:"symbols_file"`
	// Symbols restricts auto start to these codes; empty means every code
	// whose config is switched on.
	Symbols []string `toml:"symbols"`
	// OrderRateLimit caps orders per OrderRateWindow across processes when
	// Redis is enabled. Zero disables the limiter.
	OrderRateLimit  int      `toml:"order_rate_limit"`
	OrderRateWindow duration `toml:"order_rate_window"`
}

// PaperConfig seeds the simulated brokerage.
type PaperConfig struct {
	Cash         int64            `toml:"cash"`
	Prices       map[string]int64 `toml:"prices"`
	KOSDAQ       []string         `toml:"kosdaq"`
	StepPct      float64          `toml:"step_pct"`
	TickInterval duration         `toml:"tick_interval"`
	Seed         uint64           `toml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	// SymbolConfigs keeps symbol rules in the symbol_configs table instead
	// of trading.symbols_file.
	SymbolConfigs bool `toml:"symbol_configs"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	TickTTL      duration `toml:"tick_ttl"`
	StreamMaxLen int      `toml:"stream_max_len"`
	SessionLock  bool     `toml:"session_lock"`
	// KeyPrefix namespaces keys and channels per account.
	KeyPrefix string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the order journal archive job.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// Purge deletes archived rows from Postgres after upload.
	Purge bool `toml:"purge"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per minute per client IP; needs Redis.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			Kind:      "paper",
			BridgeURL: "http://127.0.0.1:8700",
			StreamURL: "ws://127.0.0.1:8700/v1/stream",
			Timeout:   duration{10 * time.Second},
		},
		Trading: TradingConfig{
			SessionOpen:     "09:00",
			SessionClose:    "15:30",
			Timezone:        "Asia/Seoul",
			TickWait:        duration{time.Second},
			IdleInterval:    duration{time.Second},
			SettleDelay:     duration{500 * time.Millisecond},
			OrderGap:        duration{300 * time.Millisecond},
			RefreshInterval: duration{5 * time.Minute},
			JoinTimeout:     duration{2 * time.Second},
			SymbolsFile:     "user_config.json",
			OrderRateWindow: duration{time.Second},
		},
		Paper: PaperConfig{
			Cash:         100_000_000,
			Prices:       map[string]int64{},
			StepPct:      0.5,
			TickInterval: duration{time.Second},
			Seed:         1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "equitybot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			TickTTL:      duration{10 * time.Minute},
			StreamMaxLen: 10000,
			SessionLock:  true,
			KeyPrefix:    "eqbot:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "equitybot-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "trading_started", "trading_stopped", "error"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":   true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// BrokerKind returns the adapter the mode runs on: paper mode always
// simulates, live mode always uses the bridge.
func (c *Config) BrokerKind() string {
	switch strings.ToLower(c.Mode) {
	case "paper":
		return "paper"
	case "live":
		return "bridge"
	default:
		return strings.ToLower(c.Broker.Kind)
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker
	switch c.BrokerKind() {
	case "paper":
		if c.Paper.Cash <= 0 {
			errs = append(errs, "paper: cash must be > 0")
		}
		if c.Paper.StepPct <= 0 || c.Paper.StepPct >= 30 {
			errs = append(errs, "paper: step_pct must be in (0, 30)")
		}
	case "bridge":
		if c.Broker.BridgeURL == "" {
			errs = append(errs, "broker: bridge_url must not be empty")
		}
		if c.Broker.StreamURL == "" {
			errs = append(errs, "broker: stream_url must not be empty")
		}
		if mode == "live" {
			if c.Broker.APIKey == "" {
				errs = append(errs, "broker: api_key is required for mode live")
			}
			if c.Broker.APISecret == "" && c.Broker.EncryptedSecretPath == "" {
				errs = append(errs, "broker: either api_secret or encrypted_secret_path must be set for mode live")
			}
		}
		if c.Broker.EncryptedSecretPath != "" && c.Broker.SecretPassword == "" {
			errs = append(errs, "broker: secret_password is required when encrypted_secret_path is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("broker: unknown kind %q (valid: paper, bridge)", c.Broker.Kind))
	}

	// Trading
	if _, err := time.Parse("15:04", c.Trading.SessionOpen); err != nil {
		errs = append(errs, fmt.Sprintf("trading: session_open %q is not HH:MM", c.Trading.SessionOpen))
	}
	if _, err := time.Parse("15:04", c.Trading.SessionClose); err != nil {
		errs = append(errs, fmt.Sprintf("trading: session_close %q is not HH:MM", c.Trading.SessionClose))
	}
	if c.Trading.SessionOpen >= c.Trading.SessionClose {
		errs = append(errs, "trading: session_open must be before session_close")
	}
	if c.Trading.TickWait.Duration <= 0 {
		errs = append(errs, "trading: tick_wait must be > 0")
	}
	if c.Trading.RefreshInterval.Duration <= 0 {
		errs = append(errs, "trading: refresh_interval must be > 0")
	}
	if c.Trading.SettleDelay.Duration < 0 || c.Trading.OrderGap.Duration < 0 {
		errs = append(errs, "trading: settle_delay and order_gap must not be negative")
	}
	if c.Trading.JoinTimeout.Duration <= 0 {
		errs = append(errs, "trading: join_timeout must be > 0")
	}
	if c.Trading.OrderRateLimit < 0 {
		errs = append(errs, "trading: order_rate_limit must be >= 0")
	}
	if !c.Postgres.SymbolConfigs && c.Trading.SymbolsFile == "" {
		errs = append(errs, "trading: symbols_file must be set unless postgres.symbol_configs is enabled")
	}
	if c.Postgres.SymbolConfigs && !c.Postgres.Enabled {
		errs = append(errs, "postgres: symbol_configs requires postgres.enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 and archive
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled || !c.Postgres.Enabled {
			errs = append(errs, "archive: requires s3.enabled and postgres.enabled")
		}
		if c.Archive.Interval.Duration < time.Minute {
			errs = append(errs, "archive: interval must be at least 1m")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	} else if mode == "monitor" {
		errs = append(errs, "server: must be enabled for mode monitor")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed:\n  - %s", domain.ErrConfigInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}
