package arbitrage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusel95/interexchangebot/internal/domain"
)

var detectedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ticker(ex domain.Exchange, sym string, bid, ask float64) domain.BookTicker {
	return domain.BookTicker{
		Exchange: ex,
		Symbol:   sym,
		Bid:      domain.QuoteOf(bid, 1),
		Ask:      domain.QuoteOf(ask, 1),
	}
}

func snapshot(exchanges ...domain.ExchangeSnapshot) domain.MarketSnapshot {
	return domain.MarketSnapshot{CycleID: "c1", Exchanges: exchanges}
}

func exchange(ex domain.Exchange, tickers ...domain.BookTicker) domain.ExchangeSnapshot {
	return domain.ExchangeSnapshot{Exchange: ex, Tickers: tickers}
}

func TestDetectBuysLowestAskSellsHighestBid(t *testing.T) {
	snap := snapshot(
		exchange("A", ticker("A", "XYZ", 101, 100)),
		exchange("B", ticker("B", "XYZ", 99, 98)),
	)

	opps := Detect(snap, detectedAt)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, "XYZ", o.Symbol)
	assert.Equal(t, domain.Exchange("B"), o.BuyExchange)
	assert.Equal(t, domain.Exchange("A"), o.SellExchange)
	assert.Equal(t, 98.0, o.BuyPrice)
	assert.Equal(t, 101.0, o.SellPrice)
	assert.InDelta(t, 3.0612, o.ProfitPercent, 1e-4)
	assert.Equal(t, detectedAt, o.DetectedAt)
}

func TestDetectSkipsSingleExchangeSymbols(t *testing.T) {
	snap := snapshot(
		exchange("A", ticker("A", "ONLYA", 200, 100)),
		exchange("B", ticker("B", "ONLYB", 200, 100)),
	)
	assert.Empty(t, Detect(snap, detectedAt))
}

func TestDetectSameExchangeBestPrices(t *testing.T) {
	// A has both the best bid and the best ask.
	snap := snapshot(
		exchange("A", ticker("A", "BTCUSDT", 105, 99)),
		exchange("B", ticker("B", "BTCUSDT", 100, 104)),
	)
	assert.Empty(t, Detect(snap, detectedAt))
}

func TestDetectNoPositiveSpread(t *testing.T) {
	snap := snapshot(
		exchange("A", ticker("A", "ETHUSDT", 99, 100)),
		exchange("B", ticker("B", "ETHUSDT", 100, 101)),
	)
	// Best bid 100 on B equals lowest ask 100 on A: no profit.
	assert.Empty(t, Detect(snap, detectedAt))
}

func TestDetectMissingQuotesExcludeExchange(t *testing.T) {
	snap := snapshot(
		exchange("A", domain.BookTicker{Exchange: "A", Symbol: "SOLUSDT", Bid: domain.MissingQuote, Ask: domain.QuoteOf(50, 1)}),
		exchange("B", domain.BookTicker{Exchange: "B", Symbol: "SOLUSDT", Bid: domain.QuoteOf(52, 1), Ask: domain.MissingQuote}),
		exchange("C", domain.BookTicker{Exchange: "C", Symbol: "SOLUSDT"}),
	)

	opps := Detect(snap, detectedAt)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.Exchange("A"), opps[0].BuyExchange)
	assert.Equal(t, domain.Exchange("B"), opps[0].SellExchange)
}

func TestDetectNoAskAnywhere(t *testing.T) {
	snap := snapshot(
		exchange("A", domain.BookTicker{Exchange: "A", Symbol: "X", Bid: domain.QuoteOf(10, 1)}),
		exchange("B", domain.BookTicker{Exchange: "B", Symbol: "X", Bid: domain.QuoteOf(11, 1)}),
	)
	assert.Empty(t, Detect(snap, detectedAt))
}

func TestDetectTieBreakFollowsSnapshotOrder(t *testing.T) {
	snap := snapshot(
		exchange("A", ticker("A", "XYZ", 90, 100)),
		exchange("B", ticker("B", "XYZ", 90, 100)),
		exchange("C", ticker("C", "XYZ", 110, 120)),
		exchange("D", ticker("D", "XYZ", 110, 120)),
	)

	for range 10 {
		opps := Detect(snap, detectedAt)
		require.Len(t, opps, 1)
		assert.Equal(t, domain.Exchange("A"), opps[0].BuyExchange)
		assert.Equal(t, domain.Exchange("C"), opps[0].SellExchange)
	}
}

func TestDetectOnePerSymbolSorted(t *testing.T) {
	snap := snapshot(
		exchange("A", ticker("A", "ZZZ", 11, 10), ticker("A", "AAA", 21, 20)),
		exchange("B", ticker("B", "ZZZ", 9, 8), ticker("B", "AAA", 19, 18)),
		exchange("C", ticker("C", "ZZZ", 12, 11)),
	)

	opps := Detect(snap, detectedAt)
	require.Len(t, opps, 2)
	assert.Equal(t, "AAA", opps[0].Symbol)
	assert.Equal(t, "ZZZ", opps[1].Symbol)
	// ZZZ: lowest ask 8 on B, highest bid 12 on C.
	assert.Equal(t, domain.Exchange("B"), opps[1].BuyExchange)
	assert.Equal(t, domain.Exchange("C"), opps[1].SellExchange)
	for _, o := range opps {
		assert.Greater(t, o.ProfitPercent, 0.0)
		assert.InDelta(t, (o.SellPrice-o.BuyPrice)/o.BuyPrice*100, o.ProfitPercent, 1e-12)
	}
}

func TestDetectDuplicateTickerWithinExchange(t *testing.T) {
	// A repeated symbol within one exchange counts once; the first row wins.
	snap := snapshot(
		exchange("A", ticker("A", "DUP", 10, 9), ticker("A", "DUP", 50, 1)),
		exchange("B", ticker("B", "DUP", 12, 11)),
	)
	opps := Detect(snap, detectedAt)
	require.Len(t, opps, 1)
	assert.Equal(t, 9.0, opps[0].BuyPrice)
	assert.Equal(t, 12.0, opps[0].SellPrice)
}

func TestDetectEmptySnapshot(t *testing.T) {
	assert.Empty(t, Detect(domain.MarketSnapshot{}, detectedAt))
}

func TestDetectDoesNotMutateSnapshot(t *testing.T) {
	snap := snapshot(
		exchange("A", domain.BookTicker{Symbol: "XYZ", Bid: domain.QuoteOf(101, 1), Ask: domain.QuoteOf(100, 1)}),
		exchange("B", ticker("B", "XYZ", 99, 98)),
	)
	opps := Detect(snap, detectedAt)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.Exchange("A"), opps[0].SellExchange)
	assert.Equal(t, domain.Exchange(""), snap.Exchanges[0].Tickers[0].Exchange)
}

func TestFilter(t *testing.T) {
	opps := []domain.ArbOpportunity{
		{Symbol: "A", ProfitPercent: 0.05},
		{Symbol: "B", ProfitPercent: 0.1},
		{Symbol: "C", ProfitPercent: 2},
	}
	got := Filter(opps, 0.1)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Symbol)
	assert.Equal(t, "C", got[1].Symbol)
}
