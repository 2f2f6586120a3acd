package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/marketstate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAdapter struct {
	exchange domain.Exchange
	tickers  []domain.BookTicker
	err      error
	delay    time.Duration
	panicMsg string
}

func (f *fakeAdapter) Exchange() domain.Exchange { return f.exchange }

func (f *fakeAdapter) FetchBookTickers(ctx context.Context) ([]domain.BookTicker, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.tickers, f.err
}

type fakeMirror struct {
	calls atomic.Int32
	err   error
}

func (m *fakeMirror) MirrorTickers(context.Context, domain.MarketSnapshot) error {
	m.calls.Add(1)
	return m.err
}

func bt(sym string, bid, ask float64) domain.BookTicker {
	return domain.BookTicker{Symbol: sym, Bid: domain.QuoteOf(bid, 1), Ask: domain.QuoteOf(ask, 1)}
}

func TestCollectToleratesOneFailingAdapter(t *testing.T) {
	state := marketstate.New()
	mirror := &fakeMirror{}
	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeBinance, tickers: []domain.BookTicker{bt("BTCUSDT", 100, 101)}},
		&fakeAdapter{exchange: domain.ExchangeWhiteBIT, err: errors.New("connection reset")},
		&fakeAdapter{exchange: domain.ExchangeKuCoin, tickers: []domain.BookTicker{bt("BTC-USDT", 102, 103)}},
	}, state, mirror, Config{Timeout: time.Second}, discardLogger())

	snap := agg.Collect(context.Background())

	assert.NotEmpty(t, snap.CycleID)
	assert.Equal(t, []string{"binance", "kucoin"}, snap.ExchangeNames())
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, domain.ExchangeWhiteBIT, snap.Failures[0].Exchange)
	assert.EqualError(t, snap.Failures[0].Err, "connection reset")

	// Symbols are normalized and stamped with their exchange.
	ku := snap.Exchanges[1].Tickers[0]
	assert.Equal(t, "BTCUSDT", ku.Symbol)
	assert.Equal(t, domain.ExchangeKuCoin, ku.Exchange)

	// The state store saw the snapshot before Collect returned.
	_, ok := state.Ticker(domain.ExchangeKuCoin, "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, int32(1), mirror.calls.Load())
}

func TestCollectAllFailingYieldsEmptySnapshot(t *testing.T) {
	mirror := &fakeMirror{}
	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeBinance, err: errors.New("503")},
		&fakeAdapter{exchange: domain.ExchangeKuCoin, err: errors.New("bad json")},
	}, marketstate.New(), mirror, Config{Timeout: time.Second}, discardLogger())

	snap := agg.Collect(context.Background())
	assert.True(t, snap.Empty())
	assert.Len(t, snap.Failures, 2)
	assert.Zero(t, mirror.calls.Load(), "empty snapshots are not mirrored")
}

func TestCollectTimesOutSlowAdapter(t *testing.T) {
	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeBinance, tickers: []domain.BookTicker{bt("ETHUSDT", 1, 2)}},
		&fakeAdapter{exchange: domain.ExchangeWhiteBIT, delay: 10 * time.Second},
	}, nil, nil, Config{Timeout: 50 * time.Millisecond}, discardLogger())

	start := time.Now()
	snap := agg.Collect(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"binance"}, snap.ExchangeNames())
	require.Len(t, snap.Failures, 1)
	assert.ErrorIs(t, snap.Failures[0].Err, context.DeadlineExceeded)
}

// stuckAdapter never looks at its context and returns only once released.
type stuckAdapter struct {
	release chan struct{}
}

func (s *stuckAdapter) Exchange() domain.Exchange { return domain.ExchangeKuCoin }

func (s *stuckAdapter) FetchBookTickers(context.Context) ([]domain.BookTicker, error) {
	<-s.release
	return []domain.BookTicker{bt("ETHUSDT", 1, 2)}, nil
}

func TestCollectBoundsAdapterIgnoringContext(t *testing.T) {
	stuck := &stuckAdapter{release: make(chan struct{})}
	defer close(stuck.release)

	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeBinance, tickers: []domain.BookTicker{bt("ETHUSDT", 1, 2)}},
		stuck,
	}, nil, nil, Config{Timeout: 50 * time.Millisecond}, discardLogger())

	start := time.Now()
	snap := agg.Collect(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"binance"}, snap.ExchangeNames())
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, domain.ExchangeKuCoin, snap.Failures[0].Exchange)
	assert.ErrorIs(t, snap.Failures[0].Err, context.DeadlineExceeded)
	assert.Contains(t, snap.Failures[0].Err.Error(), "timed out after 50ms")
}

func TestCollectRecoversAdapterPanic(t *testing.T) {
	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeBinance, panicMsg: "nil map"},
		&fakeAdapter{exchange: domain.ExchangeKuCoin, tickers: []domain.BookTicker{bt("ETHUSDT", 1, 2)}},
	}, nil, nil, Config{Timeout: time.Second}, discardLogger())

	snap := agg.Collect(context.Background())
	assert.Equal(t, []string{"kucoin"}, snap.ExchangeNames())
	require.Len(t, snap.Failures, 1)
	assert.Contains(t, snap.Failures[0].Err.Error(), "panic")
}

func TestCollectKeepsAdapterOrder(t *testing.T) {
	// The first adapter finishes last.
	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeWhiteBIT, delay: 30 * time.Millisecond, tickers: []domain.BookTicker{bt("A", 1, 2)}},
		&fakeAdapter{exchange: domain.ExchangeBinance, tickers: []domain.BookTicker{bt("A", 1, 2)}},
		&fakeAdapter{exchange: domain.ExchangeKuCoin, tickers: []domain.BookTicker{bt("A", 1, 2)}},
	}, nil, nil, Config{Timeout: time.Second, MaxConcurrency: 2}, discardLogger())

	snap := agg.Collect(context.Background())
	assert.Equal(t, []string{"whitebit", "binance", "kucoin"}, snap.ExchangeNames())
	assert.Equal(t, []domain.Exchange{domain.ExchangeWhiteBIT, domain.ExchangeBinance, domain.ExchangeKuCoin}, agg.Exchanges())
}

func TestCollectMirrorFailureIsNotFatal(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("redis down")}
	agg := New([]domain.ExchangeAdapter{
		&fakeAdapter{exchange: domain.ExchangeBinance, tickers: []domain.BookTicker{bt("A", 1, 2)}},
	}, nil, mirror, Config{}, discardLogger())

	snap := agg.Collect(context.Background())
	assert.False(t, snap.Empty())
	assert.Equal(t, int32(1), mirror.calls.Load())
}

func TestNormalizeDropsDuplicatesAndBlank(t *testing.T) {
	out := normalize(domain.ExchangeWhiteBIT, []domain.BookTicker{
		bt("BTC_USDT", 1, 2),
		bt("btc_usdt", 5, 6),
		bt("", 1, 2),
	})
	require.Len(t, out, 1)
	bid, _ := out[0].Bid.Get()
	assert.Equal(t, 1.0, bid.Price)
	assert.Equal(t, domain.ExchangeWhiteBIT, out[0].Exchange)
}

type fakeDepthSource struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	fail     map[string]bool
}

func (f *fakeDepthSource) FetchOrderbookDepth(ctx context.Context, symbol string, limit int) (domain.OrderbookDepth, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.fail[symbol] {
		return domain.OrderbookDepth{}, fmt.Errorf("depth %s: 400", symbol)
	}
	levels := make([]domain.Level, limit)
	return domain.OrderbookDepth{Bids: levels, Asks: levels}, nil
}

func TestDepthRefresherBoundedPool(t *testing.T) {
	src := &fakeDepthSource{fail: map[string]bool{"BADUSDT": true}}
	state := marketstate.New()
	r := NewDepthRefresher(src, state, 10, 3, time.Second, discardLogger())

	symbols := []string{"BTCUSDT", "ETHUSDT", "BADUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT", "DOTUSDT"}
	res, err := r.Refresh(context.Background(), symbols)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	assert.LessOrEqual(t, src.peak, 3)

	d, ok := state.Depth("ETHUSDT")
	require.True(t, ok)
	assert.Len(t, d.Bids, 10)
	_, ok = state.Depth("BADUSDT")
	assert.False(t, ok)
}

func TestDepthRefresherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewDepthRefresher(&fakeDepthSource{}, marketstate.New(), 10, 2, time.Second, discardLogger())
	_, err := r.Refresh(ctx, []string{"BTCUSDT", "ETHUSDT"})
	assert.ErrorIs(t, err, context.Canceled)
}

type stuckDepthSource struct {
	release chan struct{}
}

func (s *stuckDepthSource) FetchOrderbookDepth(_ context.Context, symbol string, _ int) (domain.OrderbookDepth, error) {
	<-s.release
	return domain.OrderbookDepth{Symbol: symbol}, nil
}

func TestDepthRefresherBoundsSourceIgnoringContext(t *testing.T) {
	src := &stuckDepthSource{release: make(chan struct{})}
	defer close(src.release)

	state := marketstate.New()
	r := NewDepthRefresher(src, state, 10, 2, 50*time.Millisecond, discardLogger())

	start := time.Now()
	res, err := r.Refresh(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, state.Depths())
}
