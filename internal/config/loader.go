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
// built-in defaults, applies ARBBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchanges ──
	setStringSlice(&cfg.Exchanges.Enabled, "ARBBOT_EXCHANGES_ENABLED")
	setDuration(&cfg.Exchanges.Timeout, "ARBBOT_EXCHANGES_TIMEOUT")
	setInt(&cfg.Exchanges.MaxConcurrency, "ARBBOT_EXCHANGES_MAX_CONCURRENCY")
	setStr(&cfg.Exchanges.BinanceURL, "ARBBOT_EXCHANGES_BINANCE_URL")
	setStr(&cfg.Exchanges.WhiteBITURL, "ARBBOT_EXCHANGES_WHITEBIT_URL")
	setStr(&cfg.Exchanges.KuCoinURL, "ARBBOT_EXCHANGES_KUCOIN_URL")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.FastInterval, "ARBBOT_SCHEDULER_FAST_INTERVAL")
	setDuration(&cfg.Scheduler.SlowInterval, "ARBBOT_SCHEDULER_SLOW_INTERVAL")
	setDuration(&cfg.Scheduler.ArchiveInterval, "ARBBOT_SCHEDULER_ARCHIVE_INTERVAL")
	setDuration(&cfg.Scheduler.AlertCooldown, "ARBBOT_SCHEDULER_ALERT_COOLDOWN")
	setBool(&cfg.Scheduler.CycleLock, "ARBBOT_SCHEDULER_CYCLE_LOCK")

	// ── Depth ──
	setInt(&cfg.Depth.Limit, "ARBBOT_DEPTH_LIMIT")
	setInt(&cfg.Depth.Concurrency, "ARBBOT_DEPTH_CONCURRENCY")
	setStringSlice(&cfg.Depth.Symbols, "ARBBOT_DEPTH_SYMBOLS")
	setBool(&cfg.Depth.Bootstrap, "ARBBOT_DEPTH_BOOTSTRAP")

	// ── Router ──
	setStr(&cfg.Router.Policy, "ARBBOT_ROUTER_POLICY")
	setDuration(&cfg.Router.ResendAfter, "ARBBOT_ROUTER_RESEND_AFTER")
	setMinProfit(cfg.Router.MinProfit, "alerting", "ARBBOT_ROUTER_MIN_PROFIT_ALERTING")

	// ── Statistics ──
	setStr(&cfg.Statistics.ReferenceExchange, "ARBBOT_STATISTICS_REFERENCE_EXCHANGE")
	setStr(&cfg.Statistics.StableAsset, "ARBBOT_STATISTICS_STABLE_ASSET")
	setStringSlice(&cfg.Statistics.StableAssets, "ARBBOT_STATISTICS_STABLE_ASSETS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.TickerTTL, "ARBBOT_REDIS_TICKER_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "ARBBOT_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBBOT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.AlertChatID, "ARBBOT_NOTIFY_ALERT_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.Email.SMTPHost, "ARBBOT_NOTIFY_EMAIL_SMTP_HOST")
	setInt(&cfg.Notify.Email.SMTPPort, "ARBBOT_NOTIFY_EMAIL_SMTP_PORT")
	setStr(&cfg.Notify.Email.Username, "ARBBOT_NOTIFY_EMAIL_USERNAME")
	setStr(&cfg.Notify.Email.Password, "ARBBOT_NOTIFY_EMAIL_PASSWORD")
	setStr(&cfg.Notify.Email.From, "ARBBOT_NOTIFY_EMAIL_FROM")
	setStringSlice(&cfg.Notify.Email.To, "ARBBOT_NOTIFY_EMAIL_TO")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARBBOT_LOG_LEVEL")
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

func setMinProfit(dst map[string]float64, mode, key string) {
	if dst == nil {
		return
	}
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			dst[mode] = f
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
