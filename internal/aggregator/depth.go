package aggregator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/metrics"
)

// DepthWriter stores refreshed order-book depth.
type DepthWriter interface {
	PutDepth(d domain.OrderbookDepth)
}

// DepthResult counts the outcome of a depth refresh.
type DepthResult struct {
	Refreshed int
	Failed    int
}

// DepthRefresher fetches order-book depth for a list of symbols through a
// bounded worker pool.
type DepthRefresher struct {
	source      domain.DepthSource
	state       DepthWriter
	limit       int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewDepthRefresher creates a DepthRefresher. limit is the number of levels
// per side; concurrency caps in-flight requests; timeout bounds each request.
func NewDepthRefresher(source domain.DepthSource, state DepthWriter, limit, concurrency int, timeout time.Duration, logger *slog.Logger) *DepthRefresher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DepthRefresher{
		source:      source,
		state:       state,
		limit:       limit,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "depth_refresher")),
	}
}

// Refresh fetches depth for every symbol. Individual failures are logged and
// counted; they do not stop the remaining fetches. Refresh returns early only
// when ctx is cancelled.
func (r *DepthRefresher) Refresh(ctx context.Context, symbols []string) (DepthResult, error) {
	type outcome struct{ ok bool }
	outcomes := make([]outcome, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, sym := range symbols {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i].ok = r.refreshOne(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	var res DepthResult
	for _, o := range outcomes {
		if o.ok {
			res.Refreshed++
		} else {
			res.Failed++
		}
	}
	r.logger.Info("depth refresh complete",
		slog.Int("symbols", len(symbols)),
		slog.Int("refreshed", res.Refreshed),
		slog.Int("failed", res.Failed),
	)
	return res, ctx.Err()
}

func (r *DepthRefresher) refreshOne(ctx context.Context, symbol string) bool {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	d, err := bounded(ctx, symbol, func(ctx context.Context) (domain.OrderbookDepth, error) {
		return r.source.FetchOrderbookDepth(ctx, symbol, r.limit)
	})
	if err != nil {
		metrics.DepthRefreshTotal.WithLabelValues(metrics.StatusError).Inc()
		r.logger.Debug("depth fetch failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return false
	}
	if d.Symbol == "" {
		d.Symbol = symbol
	}
	r.state.PutDepth(d)
	metrics.DepthRefreshTotal.WithLabelValues(metrics.StatusOK).Inc()
	return true
}
