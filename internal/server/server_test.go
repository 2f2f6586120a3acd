package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/marketstate"
	"github.com/rusel95/interexchangebot/internal/server/handler"
	"github.com/rusel95/interexchangebot/internal/subscriber"
)

const testAPIKey = "secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingLimiter struct {
	allowed int
	calls   int
	err     error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.allowed, nil
}

type fixture struct {
	state *marketstate.Store
	subs  *subscriber.Registry
	srv   *Server
}

func newFixture(t *testing.T, cfg Config, checks map[string]handler.HealthCheck) *fixture {
	t.Helper()
	logger := discardLogger()
	state := marketstate.New()
	subs := subscriber.NewRegistry()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state.PutSnapshot(domain.MarketSnapshot{Exchanges: []domain.ExchangeSnapshot{{
		Exchange: domain.ExchangeBinance,
		Tickers: []domain.BookTicker{
			{Exchange: domain.ExchangeBinance, Symbol: "BTCUSDT", Bid: domain.QuoteOf(100, 1), Ask: domain.QuoteOf(101, 2)},
			{Exchange: domain.ExchangeBinance, Symbol: "ETHUSDT", Bid: domain.QuoteOf(10, 1), Ask: domain.MissingQuote},
		},
		FetchedAt: at,
	}}})
	state.PutDepth(domain.OrderbookDepth{
		Symbol:       "BTCUSDT",
		Exchange:     domain.ExchangeBinance,
		LastUpdateID: 7,
		Bids:         []domain.Level{{Price: 100, Quantity: 1}},
		Asks:         []domain.Level{{Price: 101, Quantity: 2}},
		FetchedAt:    at,
	})
	opp, err := domain.NewArbOpportunity("BTCUSDT", domain.ExchangeWhiteBIT, domain.ExchangeBinance, 98, 101, at)
	require.NoError(t, err)
	require.NoError(t, state.RecordOpportunities(context.Background(), domain.CycleSummary{CycleID: "c1"}, []domain.ArbOpportunity{opp}))

	handlers := Handlers{
		Health:        handler.NewHealthHandler(checks, logger),
		Status:        handler.NewStatusHandler(state, subs, []string{"telegram"}, at),
		Market:        handler.NewMarketHandler(state, []domain.Exchange{domain.ExchangeBinance, domain.ExchangeWhiteBIT}),
		Subscribers:   handler.NewSubscriberHandler(subs, logger),
		Opportunities: handler.NewOpportunityHandler(state, logger),
	}
	return &fixture{state: state, subs: subs, srv: NewServer(cfg, handlers, nil, logger)}
}

func (f *fixture) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_Auth(t *testing.T) {
	f := newFixture(t, Config{APIKey: testAPIKey}, nil)

	rec := f.do(t, http.MethodGet, "/api/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/status", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authentication token", decode(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/api/status", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthDegraded(t *testing.T) {
	f := newFixture(t, Config{}, map[string]handler.HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := f.do(t, http.MethodGet, "/api/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["redis"])
	assert.Equal(t, "connection refused", checks["postgres"])
}

func TestServer_Status(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.subs.Register(1, "alice")
	_, err := f.subs.SetMode(2, domain.ModeAlerting)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/status", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"alerting": float64(1), "suspended": float64(1)}, body["subscribers"])
	assert.Equal(t, []any{"telegram"}, body["alert_channels"])
	exchanges := body["exchanges"].([]any)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "binance", exchanges[0].(map[string]any)["exchange"])
}

func TestServer_Depth(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec := f.do(t, http.MethodGet, "/api/depth/btc-usdt", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, float64(7), body["last_update_id"])
	asks := body["asks"].([]any)
	require.Len(t, asks, 1)
	assert.Equal(t, float64(101), asks[0].(map[string]any)["price"])

	rec = f.do(t, http.MethodGet, "/api/depth/XYZUSDT", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/depth", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["depth"], 1)
}

func TestServer_Tickers(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec := f.do(t, http.MethodGet, "/api/tickers/Binance", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	tickers := decode(t, rec)["tickers"].([]any)
	require.Len(t, tickers, 2)
	for _, raw := range tickers {
		tk := raw.(map[string]any)
		if tk["symbol"] == "ETHUSDT" {
			assert.Nil(t, tk["ask"])
			assert.NotNil(t, tk["bid"])
		}
	}

	rec = f.do(t, http.MethodGet, "/api/tickers/whitebit", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["tickers"])

	rec = f.do(t, http.MethodGet, "/api/tickers/mtgox", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SubscriberMode(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec := f.do(t, http.MethodPut, "/api/subscribers/42/mode", `{"mode":"/start_alerting","username":"alice"}`, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "alerting", body["mode"])
	assert.Equal(t, "alice", body["username"])

	sub, err := f.subs.Get(42)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAlerting, sub.Mode)

	rec = f.do(t, http.MethodPut, "/api/subscribers/42/mode", `{"mode":"turbo"}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/subscribers/abc/mode", `{"mode":"stop"}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/subscribers/42/mode", `not json`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/subscribers", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["subscribers"], 1)
}

func TestServer_RemoveSubscriber(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	_, err := f.subs.SetMode(42, domain.ModeAlerting)
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/api/subscribers/42", "", false)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = f.subs.Get(42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec = f.do(t, http.MethodDelete, "/api/subscribers/42", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/subscribers/abc", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RecentOpportunities(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec := f.do(t, http.MethodGet, "/api/opportunities/recent?limit=5", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "memory", body["source"])
	opps := body["opportunities"].([]any)
	require.Len(t, opps, 1)
	assert.Equal(t, "whitebit", opps[0].(map[string]any)["buy_exchange"])
}

func TestServer_RateLimit(t *testing.T) {
	limiter := &countingLimiter{allowed: 1}
	f := newFixture(t, Config{RateLimit: 1, Limiter: limiter}, nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/statistics", "", false).Code)
	rec := f.do(t, http.MethodGet, "/api/statistics", "", false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Limiter errors fail open.
	limiter.err = errors.New("redis down")
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/statistics", "", false).Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	f := newFixture(t, Config{APIKey: testAPIKey, CORSOrigins: []string{"https://dash.example"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
