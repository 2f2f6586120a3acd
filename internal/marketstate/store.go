// Package marketstate holds the latest known market data for detection and
// status queries. Writes are last-write-wins per key and entries are never
// evicted, so the last good value stays visible when an exchange drops out.
package marketstate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

const defaultRecentCapacity = 200

type tickerKey struct {
	exchange domain.Exchange
	symbol   string
}

// ExchangeStatus describes what the store knows about one exchange.
type ExchangeStatus struct {
	Exchange    domain.Exchange `json:"exchange"`
	Tickers     int             `json:"tickers"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Status is a point-in-time summary of the store for diagnostics.
type Status struct {
	LastCycle           *domain.CycleSummary `json:"last_cycle,omitempty"`
	Exchanges           []ExchangeStatus     `json:"exchanges"`
	Symbols             int                  `json:"symbols"`
	TradableSymbols     int                  `json:"tradable_symbols"`
	DepthSymbols        int                  `json:"depth_symbols"`
	Statistics          int                  `json:"statistics"`
	StatisticsUpdatedAt time.Time            `json:"statistics_updated_at"`
}

// Store is the process-wide market state. It is safe for concurrent use;
// every accessor returns a copy.
type Store struct {
	mu sync.RWMutex

	tickers     map[tickerKey]domain.BookTicker
	tickerCount map[domain.Exchange]int
	updated     map[domain.Exchange]time.Time

	depth   map[string]domain.OrderbookDepth
	symbols map[string]domain.Symbol

	stats          map[string]domain.VolumeEquivalence
	statsUpdatedAt time.Time

	lastCycle *domain.CycleSummary

	recent   []domain.ArbOpportunity
	capacity int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tickers:     make(map[tickerKey]domain.BookTicker),
		tickerCount: make(map[domain.Exchange]int),
		updated:     make(map[domain.Exchange]time.Time),
		depth:       make(map[string]domain.OrderbookDepth),
		symbols:     make(map[string]domain.Symbol),
		stats:       make(map[string]domain.VolumeEquivalence),
		capacity:    defaultRecentCapacity,
	}
}

// PutSnapshot stores the tickers of every successful exchange in snap. All
// keys of one snapshot are written under a single lock.
func (s *Store) PutSnapshot(snap domain.MarketSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range snap.Exchanges {
		s.putTickersLocked(ex.Exchange, ex.Tickers, ex.FetchedAt)
	}
}

func (s *Store) putTickersLocked(exchange domain.Exchange, tickers []domain.BookTicker, at time.Time) {
	for _, t := range tickers {
		if t.Symbol == "" {
			continue
		}
		t.Exchange = exchange
		k := tickerKey{exchange: exchange, symbol: t.Symbol}
		if _, ok := s.tickers[k]; !ok {
			s.tickerCount[exchange]++
		}
		s.tickers[k] = t
	}
	if at.After(s.updated[exchange]) {
		s.updated[exchange] = at
	}
}

// Ticker returns the latest ticker for symbol on exchange.
func (s *Store) Ticker(exchange domain.Exchange, symbol string) (domain.BookTicker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickers[tickerKey{exchange: exchange, symbol: symbol}]
	return t, ok
}

// Tickers returns the latest tickers of one exchange sorted by symbol.
func (s *Store) Tickers(exchange domain.Exchange) []domain.BookTicker {
	s.mu.RLock()
	out := make([]domain.BookTicker, 0, s.tickerCount[exchange])
	for k, t := range s.tickers {
		if k.exchange == exchange {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// PutDepth stores a symbol's order-book depth, replacing the previous entry.
func (s *Store) PutDepth(d domain.OrderbookDepth) {
	d = copyDepth(d)
	s.mu.Lock()
	s.depth[d.Symbol] = d
	s.mu.Unlock()
}

// Depth returns the latest depth for symbol.
func (s *Store) Depth(symbol string) (domain.OrderbookDepth, bool) {
	s.mu.RLock()
	d, ok := s.depth[symbol]
	s.mu.RUnlock()
	if !ok {
		return domain.OrderbookDepth{}, false
	}
	return copyDepth(d), true
}

// Depths returns every stored depth sorted by symbol.
func (s *Store) Depths() []domain.OrderbookDepth {
	s.mu.RLock()
	out := make([]domain.OrderbookDepth, 0, len(s.depth))
	for _, d := range s.depth {
		out = append(out, copyDepth(d))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func copyDepth(d domain.OrderbookDepth) domain.OrderbookDepth {
	d.Bids = append([]domain.Level(nil), d.Bids...)
	d.Asks = append([]domain.Level(nil), d.Asks...)
	return d
}

// PutSymbols merges exchange-info reference data into the store.
func (s *Store) PutSymbols(symbols []domain.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		if sym.Name == "" {
			continue
		}
		s.symbols[sym.Name] = sym
	}
}

// Symbol returns the reference data for name.
func (s *Store) Symbol(name string) (domain.Symbol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sym, ok := s.symbols[name]
	return sym, ok
}

// TradableSymbols returns the names of all tradable symbols, sorted.
func (s *Store) TradableSymbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for name, sym := range s.symbols {
		if sym.Tradable() {
			out = append(out, name)
		}
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// PutStatistics replaces the statistics entries for the given symbols.
func (s *Store) PutStatistics(stats []domain.VolumeEquivalence, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stats {
		s.stats[st.Symbol] = st
	}
	s.statsUpdatedAt = at
}

// Statistics returns every statistics entry sorted by stable volume,
// largest first.
func (s *Store) Statistics() []domain.VolumeEquivalence {
	s.mu.RLock()
	out := make([]domain.VolumeEquivalence, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].StableVolume.Cmp(out[j].StableVolume); c != 0 {
			return c > 0
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// RecordCycle stores the summary of the latest fast cycle.
func (s *Store) RecordCycle(summary domain.CycleSummary) {
	summary.Succeeded = append([]string(nil), summary.Succeeded...)
	summary.Failed = append([]string(nil), summary.Failed...)
	s.mu.Lock()
	s.lastCycle = &summary
	s.mu.Unlock()
}

// Name identifies the store as an opportunity recorder.
func (s *Store) Name() string { return "memory" }

// RecordOpportunities keeps the most recent opportunities in a bounded
// in-memory list.
func (s *Store) RecordOpportunities(_ context.Context, _ domain.CycleSummary, opps []domain.ArbOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, opps...)
	if over := len(s.recent) - s.capacity; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
	return nil
}

// RecentOpportunities returns up to limit of the latest opportunities, newest
// first. A non-positive limit returns all retained entries.
func (s *Store) RecentOpportunities(limit int) []domain.ArbOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ArbOpportunity, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Status summarises the store contents.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Exchanges:           make([]ExchangeStatus, 0, len(s.updated)),
		Symbols:             len(s.symbols),
		DepthSymbols:        len(s.depth),
		Statistics:          len(s.stats),
		StatisticsUpdatedAt: s.statsUpdatedAt,
	}
	for _, sym := range s.symbols {
		if sym.Tradable() {
			st.TradableSymbols++
		}
	}
	for ex, at := range s.updated {
		st.Exchanges = append(st.Exchanges, ExchangeStatus{Exchange: ex, Tickers: s.tickerCount[ex], LastUpdated: at})
	}
	sort.Slice(st.Exchanges, func(i, j int) bool { return st.Exchanges[i].Exchange < st.Exchanges[j].Exchange })
	if s.lastCycle != nil {
		c := *s.lastCycle
		c.Succeeded = append([]string(nil), c.Succeeded...)
		c.Failed = append([]string(nil), c.Failed...)
		st.LastCycle = &c
	}
	return st
}
