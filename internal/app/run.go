package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rusel95/interexchangebot/internal/aggregator"
	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/jobs"
	"github.com/rusel95/interexchangebot/internal/router"
	"github.com/rusel95/interexchangebot/internal/scheduler"
	"github.com/rusel95/interexchangebot/internal/server"
	"github.com/rusel95/interexchangebot/internal/server/handler"
	"github.com/rusel95/interexchangebot/internal/statistics"
)

// bootstrapLockTTL bounds the bootstrap lock when the cycle lock is enabled.
const bootstrapLockTTL = 5 * time.Minute

// pipeline holds the components built from Dependencies for one run.
type pipeline struct {
	router    *router.Router
	scheduler *scheduler.Scheduler
	bootstrap *jobs.BootstrapJob
}

// buildPipeline assembles the router, scheduler and jobs.
func (a *App) buildPipeline(deps *Dependencies) (*pipeline, error) {
	cfg := a.cfg

	policy, err := router.ParsePolicy(cfg.Router.Policy)
	if err != nil {
		return nil, err
	}
	minProfit, err := minProfitByMode(cfg.Router.MinProfit)
	if err != nil {
		return nil, err
	}
	rt := router.New(deps.Subscribers, deps.Sink, router.Config{
		Policy:      policy,
		ResendAfter: cfg.Router.ResendAfter.Duration,
		MinProfit:   minProfit,
	}, a.logger)
	deps.Subscribers.OnModeChange(rt.HandleModeChange)

	schedCfg := scheduler.Config{AlertCooldown: cfg.Scheduler.AlertCooldown.Duration}
	if cfg.Scheduler.CycleLock {
		schedCfg.Locker = deps.LockManager
	}
	sched := scheduler.New(deps.Notifier, schedCfg, a.logger)

	agg := aggregator.New(deps.Adapters, deps.State, deps.Mirror, aggregator.Config{
		Timeout:        cfg.Exchanges.Timeout.Duration,
		MaxConcurrency: cfg.Exchanges.MaxConcurrency,
	}, a.logger)
	depth := aggregator.NewDepthRefresher(deps.Reference, deps.State,
		cfg.Depth.Limit, cfg.Depth.Concurrency, cfg.Exchanges.Timeout.Duration, a.logger)

	prices := jobs.NewPricesJob(agg, rt, deps.State, deps.Recorders, a.logger)
	if watch := watchSymbols(cfg.Depth.Symbols); len(watch) > 0 {
		prices.WithDepthWatch(depth, watch)
	}
	sched.Add(prices, cfg.Scheduler.FastInterval.Duration)

	calc := statistics.NewCalculator(cfg.Statistics.StableAsset, cfg.Statistics.StableAssets)
	sched.Add(jobs.NewStatisticsJob(deps.Reference, calc, deps.State, deps.State, a.logger),
		cfg.Scheduler.SlowInterval.Duration)

	if deps.Archiver != nil {
		sched.Add(jobs.NewArchiveJob(deps.Archiver, cfg.Archive.RetentionDays, a.logger),
			cfg.Scheduler.ArchiveInterval.Duration)
	}

	var bootDepth jobs.DepthRefresher
	if cfg.Depth.Bootstrap {
		bootDepth = depth
	}
	return &pipeline{
		router:    rt,
		scheduler: sched,
		bootstrap: jobs.NewBootstrapJob(deps.Reference, deps.State, bootDepth, a.logger),
	}, nil
}

// run starts the scheduler and, when enabled, the status server under one
// errgroup. Bootstrap runs before the first cycles; its failure is alerted
// but does not stop the bot.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	p, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("app: build pipeline: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.scheduler.RunOnce(ctx, p.bootstrap, bootstrapLockTTL); err != nil {
			a.logger.WarnContext(ctx, "bootstrap failed, continuing without symbol metadata",
				slog.String("error", err.Error()),
			)
		}
		if err := p.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startHTTPServer adds the WebSocket hub, the HTTP server and its graceful
// shutdown to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	exchanges := make([]domain.Exchange, len(deps.Adapters))
	for i, ad := range deps.Adapters {
		exchanges[i] = ad.Exchange()
	}

	opps := handler.NewOpportunityHandler(deps.State, a.logger)
	if deps.Journal != nil {
		opps = opps.WithJournal(deps.Journal)
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}
	if deps.RateLimiter != nil {
		srvCfg.Limiter = deps.RateLimiter
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:        handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:        handler.NewStatusHandler(deps.State, deps.Subscribers, deps.Notifier.Senders(), time.Now().UTC()),
		Market:        handler.NewMarketHandler(deps.State, exchanges),
		Subscribers:   handler.NewSubscriberHandler(deps.Subscribers, a.logger),
		Opportunities: opps,
	}, deps.Hub, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// minProfitByMode converts the per-mode thresholds keyed by mode name.
func minProfitByMode(in map[string]float64) (map[domain.Mode]float64, error) {
	out := make(map[domain.Mode]float64, len(in))
	for name, pct := range in {
		mode, err := domain.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("router: min_profit_percent: %w", err)
		}
		out[mode] = pct
	}
	return out, nil
}

// watchSymbols normalizes and de-duplicates the configured depth watch list.
func watchSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		n := domain.NormalizeSymbol(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
