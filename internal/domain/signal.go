package domain

import (
	"fmt"
	"time"
)

// ArbOpportunity is a cross-exchange price discrepancy: buy Symbol at BuyPrice
// on BuyExchange and sell it at SellPrice on SellExchange.
type ArbOpportunity struct {
	Symbol        string    `json:"symbol"`
	BuyExchange   Exchange  `json:"buy_exchange"`
	SellExchange  Exchange  `json:"sell_exchange"`
	BuyPrice      float64   `json:"buy_price"`
	SellPrice     float64   `json:"sell_price"`
	ProfitPercent float64   `json:"profit_percent"`
	DetectedAt    time.Time `json:"detected_at"`
}

// NewArbOpportunity validates the pair and computes the profit percentage.
// The exchanges must differ and the sell price must exceed the buy price.
func NewArbOpportunity(symbol string, buyEx, sellEx Exchange, buyPrice, sellPrice float64, at time.Time) (ArbOpportunity, error) {
	if buyEx == sellEx {
		return ArbOpportunity{}, fmt.Errorf("%w: buy and sell on %s", ErrInvalidOpportunity, buyEx)
	}
	if !(buyPrice > 0) || !(sellPrice > buyPrice) {
		return ArbOpportunity{}, fmt.Errorf("%w: sell %v not above buy %v", ErrInvalidOpportunity, sellPrice, buyPrice)
	}
	return ArbOpportunity{
		Symbol:        symbol,
		BuyExchange:   buyEx,
		SellExchange:  sellEx,
		BuyPrice:      buyPrice,
		SellPrice:     sellPrice,
		ProfitPercent: ProfitPercent(buyPrice, sellPrice),
		DetectedAt:    at,
	}, nil
}

// ProfitPercent is (sell - buy) / buy * 100.
func ProfitPercent(buyPrice, sellPrice float64) float64 {
	return (sellPrice - buyPrice) / buyPrice * 100
}

// OpportunityKey identifies an opportunity across cycles.
type OpportunityKey struct {
	Symbol       string
	BuyExchange  Exchange
	SellExchange Exchange
}

// Key returns the cross-cycle identity of the opportunity.
func (o ArbOpportunity) Key() OpportunityKey {
	return OpportunityKey{Symbol: o.Symbol, BuyExchange: o.BuyExchange, SellExchange: o.SellExchange}
}

func (k OpportunityKey) String() string {
	return k.Symbol + ":" + k.BuyExchange.String() + "->" + k.SellExchange.String()
}

// CycleSummary describes the outcome of one fast cycle for status reporting.
type CycleSummary struct {
	CycleID       string    `json:"cycle_id"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Succeeded     []string  `json:"succeeded"`
	Failed        []string  `json:"failed"`
	Opportunities int       `json:"opportunities"`
	Notified      int       `json:"notified"`
}
