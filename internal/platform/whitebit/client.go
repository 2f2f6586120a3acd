// Package whitebit is a REST client for WhiteBIT public market data.
package whitebit

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
const DefaultBaseURL = "https://whitebit.com"

// tickersResponse is the body of GET /api/v1/public/tickers.
type tickersResponse struct {
	Success bool                    `json:"success"`
	Message any                     `json:"message"`
	Result  map[string]marketTicker `json:"result"`
}

type marketTicker struct {
	At     int64       `json:"at"`
	Ticker tickerQuote `json:"ticker"`
}

// tickerQuote carries best prices only; WhiteBIT does not report sizes here.
type tickerQuote struct {
	Bid  string `json:"bid"`
	Ask  string `json:"ask"`
	Last string `json:"last"`
	Vol  string `json:"vol"`
}

// Client is the WhiteBIT REST client. It implements domain.ExchangeAdapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new WhiteBIT client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Exchange returns domain.ExchangeWhiteBIT.
func (c *Client) Exchange() domain.Exchange { return domain.ExchangeWhiteBIT }

// FetchBookTickers returns the best bid/ask of every market.
func (c *Client) FetchBookTickers(ctx context.Context) ([]domain.BookTicker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/public/tickers", nil)
	if err != nil {
		return nil, fmt.Errorf("whitebit: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whitebit: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whitebit: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whitebit: HTTP %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed tickersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("whitebit: decode tickers: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("whitebit: tickers request unsuccessful: %v", parsed.Message)
	}

	out := make([]domain.BookTicker, 0, len(parsed.Result))
	for market, t := range parsed.Result {
		out = append(out, domain.BookTicker{
			Exchange: domain.ExchangeWhiteBIT,
			Symbol:   domain.NormalizeSymbol(market),
			Bid:      quote(t.Ticker.Bid),
			Ask:      quote(t.Ticker.Ask),
		})
	}
	return out, nil
}

func quote(price string) domain.Quote {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return domain.MissingQuote
	}
	return domain.QuoteOf(p, 0)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
