package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// SymbolStore keeps exchange reference data.
type SymbolStore interface {
	PutSymbols(symbols []domain.Symbol)
	TradableSymbols() []string
}

// BootstrapJob loads reference data at startup: exchange info from the
// reference exchange, then order-book depth for every tradable symbol.
type BootstrapJob struct {
	source domain.SymbolSource
	store  SymbolStore
	depth  DepthRefresher
	logger *slog.Logger
}

// NewBootstrapJob creates the startup job. depth may be nil to skip the depth
// pull.
func NewBootstrapJob(source domain.SymbolSource, store SymbolStore, depth DepthRefresher, logger *slog.Logger) *BootstrapJob {
	return &BootstrapJob{
		source: source,
		store:  store,
		depth:  depth,
		logger: logger.With(slog.String("component", "bootstrap")),
	}
}

// Name returns the job name.
func (j *BootstrapJob) Name() string { return "bootstrap" }

// Run pulls exchange info and depth. Per-symbol depth failures are dropped;
// only an exchange-info failure or cancellation fails the run.
func (j *BootstrapJob) Run(ctx context.Context) error {
	symbols, err := j.source.FetchExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("jobs: fetch exchange info: %w", err)
	}
	j.store.PutSymbols(symbols)
	tradable := j.store.TradableSymbols()

	j.logger.Info("exchange info loaded",
		slog.Int("symbols", len(symbols)),
		slog.Int("tradable", len(tradable)),
	)

	if j.depth == nil || len(tradable) == 0 {
		return nil
	}
	res, err := j.depth.Refresh(ctx, tradable)
	if err != nil {
		return err
	}
	j.logger.Info("depth loaded",
		slog.Int("refreshed", res.Refreshed),
		slog.Int("failed", res.Failed),
	)
	return nil
}
