package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// MarketState is the read side of the market state cache.
type MarketState interface {
	Depth(symbol string) (domain.OrderbookDepth, bool)
	Depths() []domain.OrderbookDepth
	Statistics() []domain.VolumeEquivalence
	Tickers(exchange domain.Exchange) []domain.BookTicker
}

// MarketHandler serves cached market data: depth, statistics and tickers.
type MarketHandler struct {
	state     MarketState
	exchanges map[domain.Exchange]bool
}

// NewMarketHandler creates a MarketHandler. exchanges lists the enabled
// exchanges; tickers of any other exchange are reported as unknown.
func NewMarketHandler(state MarketState, exchanges []domain.Exchange) *MarketHandler {
	known := make(map[domain.Exchange]bool, len(exchanges))
	for _, ex := range exchanges {
		known[ex] = true
	}
	return &MarketHandler{state: state, exchanges: known}
}

type levelView struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type depthView struct {
	Symbol       string      `json:"symbol"`
	Exchange     string      `json:"exchange"`
	LastUpdateID int64       `json:"last_update_id"`
	Bids         []levelView `json:"bids"`
	Asks         []levelView `json:"asks"`
	FetchedAt    time.Time   `json:"fetched_at"`
}

type tickerView struct {
	Symbol string     `json:"symbol"`
	Bid    *levelView `json:"bid"`
	Ask    *levelView `json:"ask"`
}

func levels(in []domain.Level) []levelView {
	out := make([]levelView, len(in))
	for i, l := range in {
		out[i] = levelView{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}

func toDepthView(d domain.OrderbookDepth) depthView {
	return depthView{
		Symbol:       d.Symbol,
		Exchange:     d.Exchange.String(),
		LastUpdateID: d.LastUpdateID,
		Bids:         levels(d.Bids),
		Asks:         levels(d.Asks),
		FetchedAt:    d.FetchedAt,
	}
}

// quoteView returns nil for a missing quote so it encodes as JSON null.
func quoteView(q domain.Quote) *levelView {
	l, ok := q.Get()
	if !ok {
		return nil
	}
	return &levelView{Price: l.Price, Quantity: l.Quantity}
}

// ListDepth returns the cached depth of every symbol.
// GET /api/depth
func (h *MarketHandler) ListDepth(w http.ResponseWriter, r *http.Request) {
	depths := h.state.Depths()
	out := make([]depthView, len(depths))
	for i, d := range depths {
		out[i] = toDepthView(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"depth": out})
}

// GetDepth returns the cached depth of one symbol.
// GET /api/depth/{symbol}
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(r.PathValue("symbol"))
	d, ok := h.state.Depth(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no depth for "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, toDepthView(d))
}

// ListStatistics returns the latest volume statistics, largest stable volume
// first.
// GET /api/statistics?limit=50
func (h *MarketHandler) ListStatistics(w http.ResponseWriter, r *http.Request) {
	stats := h.state.Statistics()
	if limit := parseLimit(r, len(stats), len(stats)); limit < len(stats) {
		stats = stats[:limit]
	}
	if stats == nil {
		stats = []domain.VolumeEquivalence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"statistics": stats})
}

// ListTickers returns the cached book tickers of one exchange.
// GET /api/tickers/{exchange}
func (h *MarketHandler) ListTickers(w http.ResponseWriter, r *http.Request) {
	ex := domain.Exchange(strings.ToLower(r.PathValue("exchange")))
	if !h.exchanges[ex] {
		writeError(w, http.StatusNotFound, domain.ErrUnknownExchange.Error()+": "+ex.String())
		return
	}

	tickers := h.state.Tickers(ex)
	out := make([]tickerView, len(tickers))
	for i, t := range tickers {
		out[i] = tickerView{Symbol: t.Symbol, Bid: quoteView(t.Bid), Ask: quoteView(t.Ask)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exchange": ex,
		"tickers":  out,
	})
}
