// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBBOT_* environment variables.
type Config struct {
	Exchanges  ExchangesConfig  `toml:"exchanges"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Depth      DepthConfig      `toml:"depth"`
	Router     RouterConfig     `toml:"router"`
	Statistics StatisticsConfig `toml:"statistics"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// ExchangesConfig selects the polled venues and bounds each fetch.
type ExchangesConfig struct {
	Enabled        []string `toml:"enabled"`
	Timeout        duration `toml:"timeout"`
	MaxConcurrency int      `toml:"max_concurrency"`
	BinanceURL     string   `toml:"binance_url"`
	WhiteBITURL    string   `toml:"whitebit_url"`
	KuCoinURL      string   `toml:"kucoin_url"`
}

// SchedulerConfig holds the periodic cycle parameters.
type SchedulerConfig struct {
	FastInterval    duration `toml:"fast_interval"`
	SlowInterval    duration `toml:"slow_interval"`
	ArchiveInterval duration `toml:"archive_interval"`
	AlertCooldown   duration `toml:"alert_cooldown"`
	// CycleLock takes a Redis lock around each cycle so only one replica
	// runs it. Requires redis.enabled.
	CycleLock bool `toml:"cycle_lock"`
}

// DepthConfig controls order-book depth acquisition for status queries.
type DepthConfig struct {
	Limit       int      `toml:"limit"`
	Concurrency int      `toml:"concurrency"`
	Symbols     []string `toml:"symbols"`
	Bootstrap   bool     `toml:"bootstrap"`
}

// RouterConfig controls who gets notified and how often.
type RouterConfig struct {
	// Policy is "on_change" (suppress repeats of a persisting opportunity) or
	// "always" (resend every cycle).
	Policy      string             `toml:"policy"`
	ResendAfter duration           `toml:"resend_after"`
	MinProfit   map[string]float64 `toml:"min_profit_percent"`
}

// StatisticsConfig controls the slow statistics cycle.
type StatisticsConfig struct {
	ReferenceExchange string   `toml:"reference_exchange"`
	StableAsset       string   `toml:"stable_asset"`
	StableAssets      []string `toml:"stable_assets"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	TickerTTL  duration `toml:"ticker_ttl"`
}

// PostgresConfig holds opportunity journal connection parameters.
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

// ArchiveConfig holds journal retention.
type ArchiveConfig struct {
	RetentionDays int `toml:"retention_days"`
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

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the number of API requests allowed per client per minute.
	// It needs Redis; zero disables limiting.
	RateLimit int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials. TelegramToken is used
// both for subscriber notifications and, with AlertChatID, for operator alerts.
type NotifyConfig struct {
	TelegramToken     string      `toml:"telegram_token"`
	AlertChatID       string      `toml:"alert_chat_id"`
	DiscordWebhookURL string      `toml:"discord_webhook_url"`
	Email             EmailConfig `toml:"email"`
}

// EmailConfig holds SMTP settings for operational alert mail.
type EmailConfig struct {
	SMTPHost string   `toml:"smtp_host"`
	SMTPPort int      `toml:"smtp_port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Exchanges: ExchangesConfig{
			Enabled:        []string{"binance", "whitebit", "kucoin"},
			Timeout:        duration{5 * time.Second},
			MaxConcurrency: 8,
			BinanceURL:     "https://api.binance.com",
			WhiteBITURL:    "https://whitebit.com",
			KuCoinURL:      "https://api.kucoin.com",
		},
		Scheduler: SchedulerConfig{
			FastInterval:    duration{10 * time.Second},
			SlowInterval:    duration{time.Minute},
			ArchiveInterval: duration{24 * time.Hour},
			AlertCooldown:   duration{10 * time.Minute},
			CycleLock:       false,
		},
		Depth: DepthConfig{
			Limit:       10,
			Concurrency: 8,
			Symbols:     []string{},
			Bootstrap:   true,
		},
		Router: RouterConfig{
			Policy:      "on_change",
			ResendAfter: duration{0},
			MinProfit: map[string]float64{
				"alerting": 0.1,
			},
		},
		Statistics: StatisticsConfig{
			ReferenceExchange: "binance",
			StableAsset:       "USDT",
			StableAssets:      []string{"USDT", "USDC", "BUSD", "TUSD", "FDUSD", "DAI"},
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			TickerTTL:  duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbbot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Email: EmailConfig{SMTPPort: 587},
		},
		LogLevel: "info",
	}
}

// validExchanges enumerates the accepted values for Exchanges.Enabled.
var validExchanges = map[string]bool{
	"binance":  true,
	"whitebit": true,
	"kucoin":   true,
}

// validPolicies enumerates the accepted values for Router.Policy.
var validPolicies = map[string]bool{
	"on_change": true,
	"always":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchanges
	if len(c.Exchanges.Enabled) < 2 {
		errs = append(errs, "exchanges: at least two exchanges must be enabled for cross-exchange detection")
	}
	seen := make(map[string]bool, len(c.Exchanges.Enabled))
	for _, name := range c.Exchanges.Enabled {
		n := strings.ToLower(strings.TrimSpace(name))
		if !validExchanges[n] {
			errs = append(errs, fmt.Sprintf("exchanges: unknown exchange %q (valid: binance, whitebit, kucoin)", name))
		}
		if seen[n] {
			errs = append(errs, fmt.Sprintf("exchanges: %q listed twice", name))
		}
		seen[n] = true
	}
	if c.Exchanges.Timeout.Duration <= 0 {
		errs = append(errs, "exchanges: timeout must be > 0")
	}
	if c.Exchanges.MaxConcurrency < 1 {
		errs = append(errs, "exchanges: max_concurrency must be >= 1")
	}

	// Scheduler
	if c.Scheduler.FastInterval.Duration <= 0 {
		errs = append(errs, "scheduler: fast_interval must be > 0")
	}
	if c.Scheduler.SlowInterval.Duration <= 0 {
		errs = append(errs, "scheduler: slow_interval must be > 0")
	}
	if c.Scheduler.FastInterval.Duration > 0 && c.Exchanges.Timeout.Duration >= c.Scheduler.FastInterval.Duration {
		errs = append(errs, "scheduler: fast_interval must exceed exchanges.timeout")
	}
	if c.Scheduler.CycleLock && !c.Redis.Enabled {
		errs = append(errs, "scheduler: cycle_lock requires redis.enabled")
	}

	// Depth
	if c.Depth.Limit < 1 || c.Depth.Limit > 5000 {
		errs = append(errs, fmt.Sprintf("depth: limit must be 1-5000, got %d", c.Depth.Limit))
	}
	if c.Depth.Concurrency < 1 {
		errs = append(errs, "depth: concurrency must be >= 1")
	}

	// Router
	if !validPolicies[strings.ToLower(c.Router.Policy)] {
		errs = append(errs, fmt.Sprintf("router: unknown policy %q (valid: on_change, always)", c.Router.Policy))
	}
	if c.Router.ResendAfter.Duration < 0 {
		errs = append(errs, "router: resend_after must be >= 0")
	}
	for mode, pct := range c.Router.MinProfit {
		if mode != "alerting" && mode != "suspended" {
			errs = append(errs, fmt.Sprintf("router: min_profit_percent has unknown mode %q", mode))
		}
		if pct < 0 {
			errs = append(errs, fmt.Sprintf("router: min_profit_percent.%s must be >= 0", mode))
		}
	}

	// Statistics
	if !seen[strings.ToLower(c.Statistics.ReferenceExchange)] || strings.ToLower(c.Statistics.ReferenceExchange) != "binance" {
		errs = append(errs, "statistics: reference_exchange must be an enabled exchange that serves depth and 24h statistics (binance)")
	}
	if c.Statistics.StableAsset == "" {
		errs = append(errs, "statistics: stable_asset must not be empty")
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Scheduler.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "scheduler: archive_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit_per_minute requires redis.enabled")
		}
	}

	// Email is all-or-nothing.
	if c.Notify.Email.SMTPHost != "" {
		if c.Notify.Email.From == "" || len(c.Notify.Email.To) == 0 {
			errs = append(errs, "notify.email: from and to must be set when smtp_host is set")
		}
		if c.Notify.Email.SMTPPort <= 0 || c.Notify.Email.SMTPPort > 65535 {
			errs = append(errs, fmt.Sprintf("notify.email: smtp_port must be 1-65535, got %d", c.Notify.Email.SMTPPort))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
