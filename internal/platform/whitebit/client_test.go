package whitebit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusel95/interexchangebot/internal/domain"
)

func TestFetchBookTickers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/public/tickers", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"message":null,"result":{
			"BTC_USDT":{"at":1594232194,"ticker":{"bid":"9412.1","ask":"9416.33","last":"9414.4","vol":"1","deal":"2","change":"0"}},
			"ETH_BTC":{"at":1594232194,"ticker":{"bid":"","ask":"0.025","last":"0.02","vol":"0","deal":"0","change":"0"}}
		}}`))
	}))
	defer srv.Close()

	tickers, err := NewClient(srv.URL, time.Second).FetchBookTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	sort.Slice(tickers, func(i, j int) bool { return tickers[i].Symbol < tickers[j].Symbol })

	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, domain.ExchangeWhiteBIT, tickers[0].Exchange)
	ask, ok := tickers[0].Ask.Get()
	require.True(t, ok)
	assert.Equal(t, 9416.33, ask.Price)

	assert.Equal(t, "ETHBTC", tickers[1].Symbol)
	assert.False(t, tickers[1].Bid.Present())
	assert.True(t, tickers[1].Ask.Present())
}

func TestFetchBookTickersUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"maintenance","result":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchBookTickers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestFetchBookTickersHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchBookTickers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
