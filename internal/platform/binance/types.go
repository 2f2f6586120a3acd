package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Binance spot API DTOs
// --------------------------------------------------------------------------

// BookTicker is one row of GET /api/v3/ticker/bookTicker.
type BookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// ExchangeInfo is the response of GET /api/v3/exchangeInfo.
type ExchangeInfo struct {
	Timezone   string         `json:"timezone"`
	ServerTime int64          `json:"serverTime"`
	Symbols    []SymbolDetail `json:"symbols"`
}

// SymbolDetail describes one trading pair.
type SymbolDetail struct {
	Symbol               string `json:"symbol"`
	Status               string `json:"status"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
}

// Depth is the response of GET /api/v3/depth.
type Depth struct {
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// PriceLevel is a ["price", "qty"] pair.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// UnmarshalJSON decodes the two-element string array form.
func (l *PriceLevel) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) < 2 {
		return fmt.Errorf("binance: price level has %d fields", len(raw))
	}
	var err error
	if l.Price, err = strconv.ParseFloat(raw[0], 64); err != nil {
		return fmt.Errorf("binance: price level price: %w", err)
	}
	if l.Quantity, err = strconv.ParseFloat(raw[1], 64); err != nil {
		return fmt.Errorf("binance: price level qty: %w", err)
	}
	return nil
}

// Ticker24h is one row of GET /api/v3/ticker/24hr.
type Ticker24h struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenTime           int64           `json:"openTime"`
	CloseTime          int64           `json:"closeTime"`
}

// ErrorResponse is the error body Binance returns with non-2xx statuses.
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
