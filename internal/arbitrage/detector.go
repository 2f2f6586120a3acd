// Package arbitrage finds cross-exchange price discrepancies in a market
// snapshot.
package arbitrage

import (
	"sort"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// side is the best price seen so far on one side of a symbol's book, and the
// exchange quoting it.
type side struct {
	exchange domain.Exchange
	price    float64
	set      bool
}

// symbolBook accumulates the best ask and best bid of one symbol across the
// exchanges in a snapshot.
type symbolBook struct {
	exchanges int
	bestAsk   side
	bestBid   side
}

// observe folds one exchange's ticker into the book. Only a strictly better
// price replaces the current best, so ties go to the exchange seen first.
func (b *symbolBook) observe(t domain.BookTicker) {
	if ask, ok := t.Ask.Get(); ok {
		if !b.bestAsk.set || ask.Price < b.bestAsk.price {
			b.bestAsk = side{exchange: t.Exchange, price: ask.Price, set: true}
		}
	}
	if bid, ok := t.Bid.Get(); ok {
		if !b.bestBid.set || bid.Price > b.bestBid.price {
			b.bestBid = side{exchange: t.Exchange, price: bid.Price, set: true}
		}
	}
}

// Detect returns the arbitrage opportunities in snap, at most one per symbol,
// sorted by symbol. A symbol qualifies when at least two exchanges report it,
// and an opportunity is emitted when the highest bid exceeds the lowest ask on
// a different exchange. Exchanges missing a side of the book are skipped for
// that side. Detect does not modify snap.
func Detect(snap domain.MarketSnapshot, now time.Time) []domain.ArbOpportunity {
	books := make(map[string]*symbolBook)
	var order []string

	for _, ex := range snap.Exchanges {
		seen := make(map[string]bool, len(ex.Tickers))
		for _, t := range ex.Tickers {
			if t.Symbol == "" || seen[t.Symbol] {
				continue
			}
			seen[t.Symbol] = true
			if t.Exchange == "" {
				t.Exchange = ex.Exchange
			}

			b, ok := books[t.Symbol]
			if !ok {
				b = &symbolBook{}
				books[t.Symbol] = b
				order = append(order, t.Symbol)
			}
			b.exchanges++
			b.observe(t)
		}
	}

	sort.Strings(order)

	var out []domain.ArbOpportunity
	for _, sym := range order {
		b := books[sym]
		if b.exchanges < 2 || !b.bestAsk.set || !b.bestBid.set {
			continue
		}
		opp, err := domain.NewArbOpportunity(sym,
			b.bestAsk.exchange, b.bestBid.exchange,
			b.bestAsk.price, b.bestBid.price, now)
		if err != nil {
			// Same exchange on both sides, or no positive spread.
			continue
		}
		out = append(out, opp)
	}
	return out
}

// Filter returns the opportunities whose profit is at least minProfitPercent.
func Filter(opps []domain.ArbOpportunity, minProfitPercent float64) []domain.ArbOpportunity {
	out := make([]domain.ArbOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.ProfitPercent >= minProfitPercent {
			out = append(out, o)
		}
	}
	return out
}
