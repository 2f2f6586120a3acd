// Package jobs holds the periodic work driven by the scheduler: the fast
// price cycle, the slow statistics cycle, journal archival and the startup
// bootstrap.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/rusel95/interexchangebot/internal/aggregator"
	"github.com/rusel95/interexchangebot/internal/arbitrage"
	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/metrics"
	"github.com/rusel95/interexchangebot/internal/router"
)

// Collector produces one market snapshot per call.
type Collector interface {
	Collect(ctx context.Context) domain.MarketSnapshot
}

// OpportunityRouter delivers opportunities to subscribers.
type OpportunityRouter interface {
	Route(ctx context.Context, opps []domain.ArbOpportunity) router.Result
}

// CycleRecorder stores the summary of the latest cycle.
type CycleRecorder interface {
	RecordCycle(summary domain.CycleSummary)
}

// DepthRefresher refreshes order-book depth for a list of symbols.
type DepthRefresher interface {
	Refresh(ctx context.Context, symbols []string) (aggregator.DepthResult, error)
}

// PricesJob is the fast cycle: collect a snapshot, detect opportunities,
// route them to subscribers and hand them to every recorder.
type PricesJob struct {
	collector    Collector
	router       OpportunityRouter
	cycles       CycleRecorder
	recorders    []domain.OpportunityRecorder
	depth        DepthRefresher
	depthSymbols []string
	now          func() time.Time
	logger       *slog.Logger
}

// NewPricesJob creates the fast cycle job.
func NewPricesJob(
	collector Collector,
	rt OpportunityRouter,
	cycles CycleRecorder,
	recorders []domain.OpportunityRecorder,
	logger *slog.Logger,
) *PricesJob {
	return &PricesJob{
		collector: collector,
		router:    rt,
		cycles:    cycles,
		recorders: recorders,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "prices_job")),
	}
}

// WithDepthWatch makes every cycle also refresh depth for symbols.
func (j *PricesJob) WithDepthWatch(refresher DepthRefresher, symbols []string) *PricesJob {
	j.depth = refresher
	j.depthSymbols = append([]string(nil), symbols...)
	return j
}

// Name returns the job name.
func (j *PricesJob) Name() string { return "prices" }

// Run executes one fast cycle. An empty snapshot is not an error: the cycle
// completes with no opportunities. Recorder and depth failures are logged and
// never fail the cycle.
func (j *PricesJob) Run(ctx context.Context) error {
	snap := j.collector.Collect(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	opps := arbitrage.Detect(snap, j.now())
	metrics.OpportunitiesDetected.Add(float64(len(opps)))
	metrics.BestProfitPercent.Set(bestProfit(opps))

	res := j.router.Route(ctx, opps)

	summary := domain.CycleSummary{
		CycleID:       snap.CycleID,
		StartedAt:     snap.StartedAt,
		CompletedAt:   j.now(),
		Succeeded:     snap.ExchangeNames(),
		Opportunities: len(opps),
		Notified:      res.Sent,
	}
	for _, f := range snap.Failures {
		summary.Failed = append(summary.Failed, f.Exchange.String())
	}
	if j.cycles != nil {
		j.cycles.RecordCycle(summary)
	}

	for _, rec := range j.recorders {
		if err := rec.RecordOpportunities(ctx, summary, opps); err != nil {
			j.logger.Error("opportunity recorder failed",
				slog.String("recorder", rec.Name()),
				slog.String("cycle_id", summary.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}

	if j.depth != nil && len(j.depthSymbols) > 0 {
		if _, err := j.depth.Refresh(ctx, j.depthSymbols); err != nil {
			return err
		}
	}

	j.logger.Info("price cycle complete",
		slog.String("cycle_id", summary.CycleID),
		slog.Int("exchanges", len(summary.Succeeded)),
		slog.Int("failed", len(summary.Failed)),
		slog.Int("opportunities", len(opps)),
		slog.Int("sent", res.Sent),
		slog.Int("suppressed", res.Suppressed),
		slog.Int("send_failed", res.Failed),
		slog.Duration("elapsed", summary.CompletedAt.Sub(summary.StartedAt)),
	)
	return nil
}

func bestProfit(opps []domain.ArbOpportunity) float64 {
	var best float64
	for _, o := range opps {
		if o.ProfitPercent > best {
			best = o.ProfitPercent
		}
	}
	return best
}
