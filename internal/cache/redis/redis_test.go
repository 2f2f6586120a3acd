package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rusel95/interexchangebot/internal/domain"
)

func setupTestRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		PoolSize:  4,
		KeyPrefix: "arbbot:test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisIntegration(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()

	t.Run("lock", func(t *testing.T) {
		lm := NewLockManager(c)

		unlock, err := lm.Acquire(ctx, "cycle", time.Minute)
		require.NoError(t, err)

		_, err = lm.Acquire(ctx, "cycle", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)

		unlock()
		unlock()

		unlock2, err := lm.Acquire(ctx, "cycle", time.Minute)
		require.NoError(t, err)
		unlock2()
	})

	t.Run("lock expires", func(t *testing.T) {
		lm := NewLockManager(c)

		_, err := lm.Acquire(ctx, "short", 100*time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			unlock, err := lm.Acquire(ctx, "short", time.Minute)
			if err != nil {
				return false
			}
			unlock()
			return true
		}, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("ticker mirror round trip", func(t *testing.T) {
		tc := NewTickerCache(c, time.Minute)
		fetched := time.Unix(1700000000, 0)
		snap := domain.MarketSnapshot{
			Exchanges: []domain.ExchangeSnapshot{{
				Exchange:  domain.ExchangeBinance,
				FetchedAt: fetched,
				Tickers: []domain.BookTicker{
					{Exchange: domain.ExchangeBinance, Symbol: "BTCUSDT", Bid: domain.QuoteOf(100, 1.5), Ask: domain.QuoteOf(101, 2)},
					{Exchange: domain.ExchangeBinance, Symbol: "ETHUSDT", Bid: domain.QuoteOf(10, 3), Ask: domain.MissingQuote},
				},
			}},
		}
		require.NoError(t, tc.MirrorTickers(ctx, snap))

		got, at, err := tc.GetTicker(ctx, domain.ExchangeBinance, "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, at.Equal(fetched))
		bid, ok := got.Bid.Get()
		require.True(t, ok)
		assert.Equal(t, domain.Level{Price: 100, Quantity: 1.5}, bid)
		ask, ok := got.Ask.Get()
		require.True(t, ok)
		assert.Equal(t, 101.0, ask.Price)

		eth, _, err := tc.GetTicker(ctx, domain.ExchangeBinance, "ETHUSDT")
		require.NoError(t, err)
		assert.True(t, eth.Bid.Present())
		assert.False(t, eth.Ask.Present())

		_, _, err = tc.GetTicker(ctx, domain.ExchangeKuCoin, "BTCUSDT")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		many, err := tc.GetTickers(ctx, domain.ExchangeBinance, []string{"BTCUSDT", "XRPUSDT", "ETHUSDT"})
		require.NoError(t, err)
		require.Len(t, many, 2)
		assert.Equal(t, "BTCUSDT", many[0].Symbol)
		assert.Equal(t, "ETHUSDT", many[1].Symbol)

		ttl, err := c.Underlying().TTL(ctx, c.key("ticker", "binance", "BTCUSDT")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("rate limiter", func(t *testing.T) {
		rl := NewRateLimiter(c)

		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, "chat:1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "request %d", i)
		}
		ok, err := rl.Allow(ctx, "chat:1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = rl.Allow(ctx, "chat:2", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("opportunity publisher", func(t *testing.T) {
		bus := NewSignalBus(c)
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		msgs, err := bus.Subscribe(subCtx, OpportunityChannel)
		require.NoError(t, err)

		pub := NewOpportunityPublisher(bus)
		opp, err := domain.NewArbOpportunity("BTCUSDT", domain.ExchangeKuCoin, domain.ExchangeBinance, 98, 101, time.Unix(1700000000, 0).UTC())
		require.NoError(t, err)
		summary := domain.CycleSummary{CycleID: "cycle-1", Succeeded: []string{"binance", "kucoin"}}

		require.NoError(t, pub.RecordOpportunities(ctx, summary, nil))
		require.NoError(t, pub.RecordOpportunities(ctx, summary, []domain.ArbOpportunity{opp}))

		select {
		case raw := <-msgs:
			var ev OpportunityEvent
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, "cycle-1", ev.CycleID)
			require.Len(t, ev.Opportunities, 1)
			assert.Equal(t, opp.Key(), ev.Opportunities[0].Key())
		case <-time.After(5 * time.Second):
			t.Fatal("no opportunity event received")
		}

		n, err := c.Underlying().XLen(ctx, c.key(OpportunityStream)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}
