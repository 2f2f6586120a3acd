// Package aggregator polls every configured exchange concurrently and merges
// the results into one market snapshot per cycle.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/metrics"
)

// SnapshotWriter receives every collected snapshot before it is returned.
type SnapshotWriter interface {
	PutSnapshot(snap domain.MarketSnapshot)
}

// Config bounds a collection cycle.
type Config struct {
	// Timeout is the per-exchange fetch deadline.
	Timeout time.Duration
	// MaxConcurrency caps simultaneous exchange fetches. Zero means no cap.
	MaxConcurrency int
}

// Aggregator fans out to exchange adapters and tolerates partial failure.
type Aggregator struct {
	adapters []domain.ExchangeAdapter
	state    SnapshotWriter
	mirror   domain.TickerMirror
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Aggregator. mirror may be nil.
func New(adapters []domain.ExchangeAdapter, state SnapshotWriter, mirror domain.TickerMirror, cfg Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		state:    state,
		mirror:   mirror,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// Exchanges returns the configured exchanges in adapter order.
func (a *Aggregator) Exchanges() []domain.Exchange {
	out := make([]domain.Exchange, len(a.adapters))
	for i, ad := range a.adapters {
		out[i] = ad.Exchange()
	}
	return out
}

// Collect runs one acquisition cycle. Each adapter gets its own deadline; an
// adapter that fails or times out is left out of the snapshot and recorded in
// Failures. Collect waits for every adapter to finish and never fails: when no
// exchange succeeds the snapshot is empty. The snapshot is written to the
// market state (and mirror, when set) before it is returned.
func (a *Aggregator) Collect(ctx context.Context) domain.MarketSnapshot {
	started := a.now()
	results := make([]domain.ExchangeSnapshot, len(a.adapters))

	// Adapter errors are kept in results, so the group never cancels its
	// siblings.
	var g errgroup.Group
	if a.cfg.MaxConcurrency > 0 {
		g.SetLimit(a.cfg.MaxConcurrency)
	}
	for i, ad := range a.adapters {
		g.Go(func() error {
			results[i] = a.fetch(ctx, ad)
			return nil
		})
	}
	_ = g.Wait()

	snap := domain.MarketSnapshot{
		CycleID:   uuid.NewString(),
		Exchanges: make([]domain.ExchangeSnapshot, 0, len(results)),
		StartedAt: started,
	}
	for _, res := range results {
		if res.OK() {
			snap.Exchanges = append(snap.Exchanges, res)
			continue
		}
		snap.Failures = append(snap.Failures, domain.ExchangeFailure{Exchange: res.Exchange, Err: res.Err})
	}
	snap.CompletedAt = a.now()

	if a.state != nil {
		a.state.PutSnapshot(snap)
	}
	if a.mirror != nil && !snap.Empty() {
		if err := a.mirror.MirrorTickers(ctx, snap); err != nil {
			a.logger.Warn("ticker mirror failed", slog.String("error", err.Error()))
		}
	}

	if snap.Empty() {
		a.logger.Warn("no exchange returned data",
			slog.String("cycle_id", snap.CycleID),
			slog.Int("failed", len(snap.Failures)),
		)
	} else {
		a.logger.Debug("snapshot collected",
			slog.String("cycle_id", snap.CycleID),
			slog.Any("exchanges", snap.ExchangeNames()),
			slog.Int("failed", len(snap.Failures)),
			slog.Duration("elapsed", snap.CompletedAt.Sub(started)),
		)
	}
	return snap
}

// fetch calls one adapter under its own timeout and converts any failure,
// including a panic inside the adapter, into an errored snapshot.
func (a *Aggregator) fetch(ctx context.Context, ad domain.ExchangeAdapter) (res domain.ExchangeSnapshot) {
	ex := ad.Exchange()
	res.Exchange = ex

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := a.now()
	defer func() {
		if r := recover(); r != nil {
			res.Tickers = nil
			res.Err = fmt.Errorf("aggregator: %s adapter panic: %v", ex, r)
		}
		res.Latency = a.now().Sub(start)
		metrics.ExchangeFetchDuration.WithLabelValues(ex.String()).Observe(res.Latency.Seconds())
		if res.Err != nil {
			metrics.ExchangeFetchTotal.WithLabelValues(ex.String(), metrics.StatusError).Inc()
			a.logger.Warn("exchange fetch failed",
				slog.String("exchange", ex.String()),
				slog.Duration("latency", res.Latency),
				slog.String("error", res.Err.Error()),
			)
			return
		}
		metrics.ExchangeFetchTotal.WithLabelValues(ex.String(), metrics.StatusOK).Inc()
		metrics.ExchangeTickers.WithLabelValues(ex.String()).Set(float64(len(res.Tickers)))
	}()

	tickers, err := bounded(ctx, ex.String(), ad.FetchBookTickers)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("aggregator: %s timed out after %s: %w", ex, a.cfg.Timeout, err)
		}
		res.Err = err
		return res
	}

	res.Tickers = normalize(ex, tickers)
	res.FetchedAt = a.now()
	return res
}

type callResult[T any] struct {
	val T
	err error
}

// bounded runs fn in its own goroutine so the caller is released when ctx is
// done even if fn ignores ctx. An abandoned call drains into the buffered
// channel and exits on its own.
func bounded[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan callResult[T], 1)
	go func() {
		var res callResult[T]
		defer func() {
			if r := recover(); r != nil {
				res = callResult[T]{err: fmt.Errorf("aggregator: %s: panic: %v", name, r)}
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// normalize stamps the exchange on every ticker, canonicalises symbol names
// and keeps the first ticker per symbol.
func normalize(ex domain.Exchange, tickers []domain.BookTicker) []domain.BookTicker {
	out := make([]domain.BookTicker, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		sym := domain.NormalizeSymbol(t.Symbol)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		t.Symbol = sym
		t.Exchange = ex
		out = append(out, t)
	}
	return out
}
