// Package statistics converts 24h ticker statistics into volumes comparable
// across quote assets.
package statistics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// SymbolLookup resolves exchange-info reference data by symbol name.
type SymbolLookup interface {
	Symbol(name string) (domain.Symbol, bool)
}

// Calculator expresses each symbol's quote volume in a single stable asset.
type Calculator struct {
	target  string
	stables map[string]bool
}

// NewCalculator creates a Calculator converting into target. Assets listed in
// stables are treated as 1:1 with target.
func NewCalculator(target string, stables []string) *Calculator {
	c := &Calculator{
		target:  strings.ToUpper(target),
		stables: make(map[string]bool, len(stables)+1),
	}
	c.stables[c.target] = true
	for _, s := range stables {
		c.stables[strings.ToUpper(s)] = true
	}
	return c
}

// Compute returns one VolumeEquivalence per statistic. A quote asset is
// converted through its <QUOTE><TARGET> last price, or the inverse of
// <TARGET><QUOTE>. Entries that cannot be converted keep a zero stable volume
// and Convertible=false.
func (c *Calculator) Compute(stats []domain.PriceChangeStatistic, symbols SymbolLookup, at time.Time) []domain.VolumeEquivalence {
	lastPrice := make(map[string]decimal.Decimal, len(stats))
	for _, st := range stats {
		lastPrice[st.Symbol] = st.LastPrice
	}

	out := make([]domain.VolumeEquivalence, 0, len(stats))
	for _, st := range stats {
		quote := c.quoteAsset(st.Symbol, symbols)
		eq := domain.VolumeEquivalence{
			Symbol:         st.Symbol,
			QuoteAsset:     quote,
			PriceChangePct: st.PriceChangePercent,
			LastPrice:      st.LastPrice,
			QuoteVolume:    st.QuoteVolume,
			StableAsset:    c.target,
			ComputedAt:     at,
		}
		if rate, ok := c.rate(quote, lastPrice); ok {
			eq.StableVolume = st.QuoteVolume.Mul(rate)
			eq.Convertible = true
		}
		out = append(out, eq)
	}
	return out
}

// rate is the price of one unit of quote in the target asset.
func (c *Calculator) rate(quote string, lastPrice map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if quote == "" {
		return decimal.Zero, false
	}
	if c.stables[quote] {
		return decimal.NewFromInt(1), true
	}
	if p, ok := lastPrice[quote+c.target]; ok && p.IsPositive() {
		return p, true
	}
	if p, ok := lastPrice[c.target+quote]; ok && p.IsPositive() {
		return decimal.NewFromInt(1).DivRound(p, 16), true
	}
	return decimal.Zero, false
}

// knownQuotes is tried longest first when exchange info has no entry for a
// symbol.
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "TRY", "EUR", "BTC", "ETH", "BNB", "DAI"}

func (c *Calculator) quoteAsset(symbol string, symbols SymbolLookup) string {
	if symbols != nil {
		if sym, ok := symbols.Symbol(symbol); ok && sym.QuoteAsset != "" {
			return strings.ToUpper(sym.QuoteAsset)
		}
	}
	for _, q := range knownQuotes {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return q
		}
	}
	return ""
}
