package domain

import (
	"math"
	"strings"
	"time"
)

// Exchange identifies a trading venue.
type Exchange string

const (
	ExchangeBinance  Exchange = "binance"
	ExchangeWhiteBIT Exchange = "whitebit"
	ExchangeKuCoin   Exchange = "kucoin"
)

// String returns the exchange identifier.
func (e Exchange) String() string { return string(e) }

// SymbolStatusTrading is the exchange-info status of a symbol open for trading.
const SymbolStatusTrading = "TRADING"

// Symbol is reference data for a trading pair, refreshed from exchange info.
type Symbol struct {
	Name                 string // normalized BASEQUOTE, e.g. "BTCUSDT"
	BaseAsset            string
	QuoteAsset           string
	Status               string
	IsSpotTradingAllowed bool
}

// Tradable reports whether the symbol is open for spot trading.
func (s Symbol) Tradable() bool {
	return s.Status == SymbolStatusTrading && s.IsSpotTradingAllowed
}

// NormalizeSymbol maps venue-specific pair spellings ("BTC_USDT", "btc-usdt",
// "BTC/USDT") onto the common upper-case BASEQUOTE form.
func NormalizeSymbol(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch r {
		case '_', '-', '/', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Level is a single price+quantity entry.
type Level struct {
	Price    float64
	Quantity float64
}

// Quote is one side of a book ticker. A quote is either present (a positive
// price with its quantity) or missing; the zero value is missing.
type Quote struct {
	level   Level
	present bool
}

// MissingQuote is the quote of a side the exchange had no data for.
var MissingQuote = Quote{}

// QuoteOf builds a present quote. Non-positive or non-finite prices yield
// MissingQuote.
func QuoteOf(price, quantity float64) Quote {
	if !(price > 0) || math.IsInf(price, 0) {
		return MissingQuote
	}
	return Quote{level: Level{Price: price, Quantity: quantity}, present: true}
}

// Get returns the level and whether the quote is present.
func (q Quote) Get() (Level, bool) {
	return q.level, q.present
}

// Present reports whether the quote carries a price.
func (q Quote) Present() bool { return q.present }

// BookTicker is the best bid and best ask for a symbol on one exchange.
type BookTicker struct {
	Exchange Exchange
	Symbol   string
	Bid      Quote
	Ask      Quote
}

// OrderbookDepth holds the top-N price levels on each side of a book.
type OrderbookDepth struct {
	Symbol       string
	Exchange     Exchange
	LastUpdateID int64
	Bids         []Level // best (highest) first
	Asks         []Level // best (lowest) first
	FetchedAt    time.Time
}

// ExchangeSnapshot is one exchange's book tickers for a cycle.
type ExchangeSnapshot struct {
	Exchange  Exchange
	Tickers   []BookTicker
	FetchedAt time.Time
	Latency   time.Duration
	Err       error
}

// OK reports whether the fetch succeeded.
func (s ExchangeSnapshot) OK() bool { return s.Err == nil }

// ExchangeFailure records an exchange that dropped out of a cycle.
type ExchangeFailure struct {
	Exchange Exchange
	Err      error
}

// MarketSnapshot is the merged market data of one polling cycle. It holds only
// successful exchange results, in adapter configuration order, and is not
// mutated after the aggregator returns it.
type MarketSnapshot struct {
	CycleID     string
	Exchanges   []ExchangeSnapshot
	Failures    []ExchangeFailure
	StartedAt   time.Time
	CompletedAt time.Time
}

// Empty reports whether no exchange succeeded.
func (s MarketSnapshot) Empty() bool { return len(s.Exchanges) == 0 }

// ExchangeNames lists the exchanges present in the snapshot.
func (s MarketSnapshot) ExchangeNames() []string {
	names := make([]string, 0, len(s.Exchanges))
	for _, ex := range s.Exchanges {
		names = append(names, ex.Exchange.String())
	}
	return names
}
