// Package kucoin is a REST client for KuCoin public market data.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.kucoin.com"

// successCode is the body-level code KuCoin returns on success.
const successCode = "200000"

type allTickersResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Time   int64    `json:"time"`
		Ticker []ticker `json:"ticker"`
	} `json:"data"`
}

// ticker fields are nullable strings; "buy" is the best bid and "sell" the
// best ask.
type ticker struct {
	Symbol      string  `json:"symbol"`
	Buy         *string `json:"buy"`
	BestBidSize *string `json:"bestBidSize"`
	Sell        *string `json:"sell"`
	BestAskSize *string `json:"bestAskSize"`
	Last        *string `json:"last"`
}

// Client is the KuCoin REST client. It implements domain.ExchangeAdapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new KuCoin client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Exchange returns domain.ExchangeKuCoin.
func (c *Client) Exchange() domain.Exchange { return domain.ExchangeKuCoin }

// FetchBookTickers returns the best bid/ask of every symbol.
func (c *Client) FetchBookTickers(ctx context.Context) ([]domain.BookTicker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/market/allTickers", nil)
	if err != nil {
		return nil, fmt.Errorf("kucoin: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kucoin: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kucoin: read response: %w", err)
	}

	var parsed allTickersResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kucoin: HTTP %d: %s (%s)", resp.StatusCode, parsed.Msg, parsed.Code)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("kucoin: decode tickers: %w", decodeErr)
	}
	if parsed.Code != successCode {
		return nil, fmt.Errorf("kucoin: api error: %s (%s)", parsed.Msg, parsed.Code)
	}

	out := make([]domain.BookTicker, 0, len(parsed.Data.Ticker))
	for _, t := range parsed.Data.Ticker {
		out = append(out, domain.BookTicker{
			Exchange: domain.ExchangeKuCoin,
			Symbol:   domain.NormalizeSymbol(t.Symbol),
			Bid:      quote(t.Buy, t.BestBidSize),
			Ask:      quote(t.Sell, t.BestAskSize),
		})
	}
	return out, nil
}

func quote(price, size *string) domain.Quote {
	if price == nil {
		return domain.MissingQuote
	}
	p, err := strconv.ParseFloat(*price, 64)
	if err != nil {
		return domain.MissingQuote
	}
	var q float64
	if size != nil {
		q, _ = strconv.ParseFloat(*size, 64)
	}
	return domain.QuoteOf(p, q)
}
