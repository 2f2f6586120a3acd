package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/rusel95/interexchangebot/internal/blob/s3"
	"github.com/rusel95/interexchangebot/internal/cache/redis"
	"github.com/rusel95/interexchangebot/internal/config"
	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/marketstate"
	"github.com/rusel95/interexchangebot/internal/notify"
	"github.com/rusel95/interexchangebot/internal/platform/binance"
	"github.com/rusel95/interexchangebot/internal/platform/kucoin"
	"github.com/rusel95/interexchangebot/internal/platform/whitebit"
	"github.com/rusel95/interexchangebot/internal/server/handler"
	"github.com/rusel95/interexchangebot/internal/server/ws"
	"github.com/rusel95/interexchangebot/internal/store/postgres"
	"github.com/rusel95/interexchangebot/internal/subscriber"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function. Optional backends are
// nil when disabled.
type Dependencies struct {
	// Exchanges
	Adapters  []domain.ExchangeAdapter
	Reference *binance.Client

	// In-process state
	State       *marketstate.Store
	Subscribers *subscriber.Registry

	// Redis
	Mirror      domain.TickerMirror
	LockManager domain.LockManager
	RateLimiter *redis.RateLimiter

	// Postgres
	Journal  *postgres.OpportunityStore
	AlertLog *postgres.AlertLog

	// S3
	Archiver domain.Archiver

	// Fan-out and notifications
	Recorders []domain.OpportunityRecorder
	Sink      domain.NotificationSink
	Notifier  *notify.Notifier
	Hub       *ws.Hub

	// HealthChecks covers every enabled backend for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		State:        marketstate.New(),
		Subscribers:  subscriber.NewRegistry(),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- Exchanges ---
	adapters, ref, err := buildAdapters(cfg.Exchanges)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: exchanges: %w", err)
	}
	deps.Adapters = adapters
	deps.Reference = ref

	deps.Recorders = append(deps.Recorders, deps.State)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Mirror = redis.NewTickerCache(redisClient, cfg.Redis.TickerTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Recorders = append(deps.Recorders, redis.NewOpportunityPublisher(redis.NewSignalBus(redisClient)))
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Journal = postgres.NewOpportunityStore(pool)
		deps.AlertLog = postgres.NewAlertLog(pool)
		deps.Recorders = append(deps.Recorders, postgres.NewJournal(deps.Journal))
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- S3 archive (requires the journal) ---
	if cfg.S3.Enabled && deps.Journal != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(deps.Journal, s3blob.NewReader(s3Client), s3blob.NewWriter(s3Client), logger)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- WebSocket hub ---
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(logger)
		deps.Recorders = append(deps.Recorders, deps.Hub)
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(alertSenders(cfg.Notify, deps.AlertLog), logger)

	var sink domain.NotificationSink
	if cfg.Notify.TelegramToken != "" {
		sink = notify.NewSubscriberSink(notify.NewTelegramClient(notify.DefaultTelegramAPI, cfg.Notify.TelegramToken))
	} else {
		logger.Warn("wire: notify.telegram_token not set, subscriber notifications are only logged")
		sink = notify.NewLogSink(logger)
	}
	if deps.RateLimiter != nil {
		sink = notify.NewRateLimitedSink(sink, deps.RateLimiter, domain.ModeAlerting.Interval())
	}
	deps.Sink = sink

	return deps, cleanup, nil
}

// buildAdapters creates one REST adapter per enabled exchange, in config
// order. The reference exchange client is returned separately; it also serves
// exchange info, depth and 24h statistics.
func buildAdapters(cfg config.ExchangesConfig) ([]domain.ExchangeAdapter, *binance.Client, error) {
	timeout := cfg.Timeout.Duration
	var (
		adapters []domain.ExchangeAdapter
		ref      *binance.Client
	)
	for _, name := range cfg.Enabled {
		switch domain.Exchange(strings.ToLower(strings.TrimSpace(name))) {
		case domain.ExchangeBinance:
			ref = binance.NewClient(cfg.BinanceURL, timeout)
			adapters = append(adapters, ref)
		case domain.ExchangeWhiteBIT:
			adapters = append(adapters, whitebit.NewClient(cfg.WhiteBITURL, timeout))
		case domain.ExchangeKuCoin:
			adapters = append(adapters, kucoin.NewClient(cfg.KuCoinURL, timeout))
		default:
			return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownExchange, name)
		}
	}
	if len(adapters) == 0 {
		return nil, nil, domain.ErrNoExchanges
	}
	if ref == nil {
		return nil, nil, fmt.Errorf("reference exchange %s is not enabled", domain.ExchangeBinance)
	}
	return adapters, ref, nil
}

// alertSenders returns the operator alert channels that have credentials.
func alertSenders(cfg config.NotifyConfig, alertLog *postgres.AlertLog) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.AlertChatID != "" {
		client := notify.NewTelegramClient(notify.DefaultTelegramAPI, cfg.TelegramToken)
		senders = append(senders, notify.NewTelegramSender(client, cfg.AlertChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.Email.SMTPHost != "" && len(cfg.Email.To) > 0 {
		senders = append(senders, notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}
	if alertLog != nil {
		senders = append(senders, alertLog)
	}
	return senders
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second
