package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceChangeStatistic is a symbol's rolling 24h ticker statistics.
type PriceChangeStatistic struct {
	Symbol             string
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	LastPrice          decimal.Decimal
	Volume             decimal.Decimal // base asset
	QuoteVolume        decimal.Decimal // quote asset
	OpenTime           time.Time
	CloseTime          time.Time
}

// VolumeEquivalence is a symbol's 24h statistics plus its quote volume
// expressed in the stable target asset.
type VolumeEquivalence struct {
	Symbol         string          `json:"symbol"`
	QuoteAsset     string          `json:"quote_asset"`
	PriceChangePct decimal.Decimal `json:"price_change_percent"`
	LastPrice      decimal.Decimal `json:"last_price"`
	QuoteVolume    decimal.Decimal `json:"quote_volume"`
	StableVolume   decimal.Decimal `json:"stable_volume"`
	StableAsset    string          `json:"stable_asset"`
	Convertible    bool            `json:"convertible"`
	ComputedAt     time.Time       `json:"computed_at"`
}
