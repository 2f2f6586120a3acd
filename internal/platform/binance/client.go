// Package binance is a REST client for the Binance spot market data API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// DefaultBaseURL is the public spot API root.
const DefaultBaseURL = "https://api.binance.com"

// Client is the REST client for Binance public market data. It implements
// domain.ExchangeAdapter, domain.DepthSource, domain.SymbolSource and
// domain.StatisticsSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Binance client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Exchange returns domain.ExchangeBinance.
func (c *Client) Exchange() domain.Exchange { return domain.ExchangeBinance }

// FetchBookTickers returns the best bid/ask of every symbol.
func (c *Client) FetchBookTickers(ctx context.Context) ([]domain.BookTicker, error) {
	body, err := c.get(ctx, "/api/v3/ticker/bookTicker", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: book tickers: %w", err)
	}

	var rows []BookTicker
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode book tickers: %w", err)
	}

	out := make([]domain.BookTicker, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.BookTicker{
			Exchange: domain.ExchangeBinance,
			Symbol:   domain.NormalizeSymbol(r.Symbol),
			Bid:      quote(r.BidPrice, r.BidQty),
			Ask:      quote(r.AskPrice, r.AskQty),
		})
	}
	return out, nil
}

// FetchExchangeInfo returns reference data for every listed symbol.
func (c *Client) FetchExchangeInfo(ctx context.Context) ([]domain.Symbol, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}

	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	out := make([]domain.Symbol, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, domain.Symbol{
			Name:                 domain.NormalizeSymbol(s.Symbol),
			BaseAsset:            s.BaseAsset,
			QuoteAsset:           s.QuoteAsset,
			Status:               s.Status,
			IsSpotTradingAllowed: s.IsSpotTradingAllowed,
		})
	}
	return out, nil
}

// FetchOrderbookDepth returns the top limit levels of symbol's book.
func (c *Client) FetchOrderbookDepth(ctx context.Context, symbol string, limit int) (domain.OrderbookDepth, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/api/v3/depth", params)
	if err != nil {
		return domain.OrderbookDepth{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}

	var d Depth
	if err := json.Unmarshal(body, &d); err != nil {
		return domain.OrderbookDepth{}, fmt.Errorf("binance: decode depth %s: %w", symbol, err)
	}

	return domain.OrderbookDepth{
		Symbol:       domain.NormalizeSymbol(symbol),
		Exchange:     domain.ExchangeBinance,
		LastUpdateID: d.LastUpdateID,
		Bids:         levels(d.Bids),
		Asks:         levels(d.Asks),
		FetchedAt:    time.Now(),
	}, nil
}

// FetchPriceChangeStatistics returns the rolling 24h statistics of every
// symbol.
func (c *Client) FetchPriceChangeStatistics(ctx context.Context) ([]domain.PriceChangeStatistic, error) {
	body, err := c.get(ctx, "/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: 24h statistics: %w", err)
	}

	var rows []Ticker24h
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode 24h statistics: %w", err)
	}

	out := make([]domain.PriceChangeStatistic, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PriceChangeStatistic{
			Symbol:             domain.NormalizeSymbol(r.Symbol),
			PriceChange:        r.PriceChange,
			PriceChangePercent: r.PriceChangePercent,
			LastPrice:          r.LastPrice,
			Volume:             r.Volume,
			QuoteVolume:        r.QuoteVolume,
			OpenTime:           time.UnixMilli(r.OpenTime).UTC(),
			CloseTime:          time.UnixMilli(r.CloseTime).UTC(),
		})
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("rate limited: %s (%d)", apiErr.Msg, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%d)", apiErr.Msg, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%d)", statusCode, apiErr.Msg, apiErr.Code)
	}
}

func quote(price, qty string) domain.Quote {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return domain.MissingQuote
	}
	q, _ := strconv.ParseFloat(qty, 64)
	return domain.QuoteOf(p, q)
}

func levels(in []PriceLevel) []domain.Level {
	out := make([]domain.Level, len(in))
	for i, l := range in {
		out[i] = domain.Level{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}
