package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// TickerCache implements domain.TickerMirror using Redis hashes.
// Each ticker is stored at key "ticker:{exchange}:{symbol}" with fields
// "bid", "bid_qty", "ask", "ask_qty" and "ts" (Unix nanoseconds). A missing
// side is stored as an empty string. Keys expire after ttl so a dead bot
// does not leave stale prices behind.
type TickerCache struct {
	c   *Client
	rdb *redis.Client
	ttl time.Duration
}

// NewTickerCache creates a TickerCache backed by the given Client.
func NewTickerCache(c *Client, ttl time.Duration) *TickerCache {
	return &TickerCache{c: c, rdb: c.Underlying(), ttl: ttl}
}

func (tc *TickerCache) tickerKey(ex domain.Exchange, symbol string) string {
	return tc.c.key("ticker", ex.String(), symbol)
}

// MirrorTickers writes every ticker of snap in a single pipeline.
func (tc *TickerCache) MirrorTickers(ctx context.Context, snap domain.MarketSnapshot) error {
	pipe := tc.rdb.Pipeline()
	n := 0
	for _, ex := range snap.Exchanges {
		ts := strconv.FormatInt(ex.FetchedAt.UnixNano(), 10)
		for _, t := range ex.Tickers {
			key := tc.tickerKey(ex.Exchange, t.Symbol)
			bidPx, bidQty := encodeQuote(t.Bid)
			askPx, askQty := encodeQuote(t.Ask)
			pipe.HSet(ctx, key, map[string]interface{}{
				"bid":     bidPx,
				"bid_qty": bidQty,
				"ask":     askPx,
				"ask_qty": askQty,
				"ts":      ts,
			})
			if tc.ttl > 0 {
				pipe.Expire(ctx, key, tc.ttl)
			}
			n++
		}
	}
	if n == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mirror %d tickers: %w", n, err)
	}
	return nil
}

// GetTicker reads one mirrored ticker and the time it was fetched.
// It returns domain.ErrNotFound when the key does not exist.
func (tc *TickerCache) GetTicker(ctx context.Context, ex domain.Exchange, symbol string) (domain.BookTicker, time.Time, error) {
	vals, err := tc.rdb.HGetAll(ctx, tc.tickerKey(ex, symbol)).Result()
	if err != nil {
		return domain.BookTicker{}, time.Time{}, fmt.Errorf("redis: get ticker %s %s: %w", ex, symbol, err)
	}
	if len(vals) == 0 {
		return domain.BookTicker{}, time.Time{}, domain.ErrNotFound
	}
	return decodeTicker(ex, symbol, vals)
}

// GetTickers reads the mirrored tickers of several symbols on one exchange
// using a pipeline. Symbols without a key are omitted.
func (tc *TickerCache) GetTickers(ctx context.Context, ex domain.Exchange, symbols []string) ([]domain.BookTicker, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	pipe := tc.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(symbols))
	for i, sym := range symbols {
		cmds[i] = pipe.HGetAll(ctx, tc.tickerKey(ex, sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get tickers pipeline: %w", err)
	}

	out := make([]domain.BookTicker, 0, len(symbols))
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		t, _, err := decodeTicker(ex, symbols[i], vals)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func encodeQuote(q domain.Quote) (string, string) {
	l, ok := q.Get()
	if !ok {
		return "", ""
	}
	return strconv.FormatFloat(l.Price, 'f', -1, 64), strconv.FormatFloat(l.Quantity, 'f', -1, 64)
}

func decodeQuote(px, qty string) (domain.Quote, error) {
	if px == "" {
		return domain.MissingQuote, nil
	}
	p, err := strconv.ParseFloat(px, 64)
	if err != nil {
		return domain.MissingQuote, err
	}
	q, _ := strconv.ParseFloat(qty, 64)
	return domain.QuoteOf(p, q), nil
}

func decodeTicker(ex domain.Exchange, symbol string, vals map[string]string) (domain.BookTicker, time.Time, error) {
	bid, err := decodeQuote(vals["bid"], vals["bid_qty"])
	if err != nil {
		return domain.BookTicker{}, time.Time{}, fmt.Errorf("redis: parse bid %s %s: %w", ex, symbol, err)
	}
	ask, err := decodeQuote(vals["ask"], vals["ask_qty"])
	if err != nil {
		return domain.BookTicker{}, time.Time{}, fmt.Errorf("redis: parse ask %s %s: %w", ex, symbol, err)
	}
	var at time.Time
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		at = time.Unix(0, n)
	}
	return domain.BookTicker{Exchange: ex, Symbol: symbol, Bid: bid, Ask: ask}, at, nil
}

// Compile-time interface check.
var _ domain.TickerMirror = (*TickerCache)(nil)
