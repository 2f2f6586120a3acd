package domain

import "context"

// ExchangeAdapter fetches one venue's book tickers mapped onto the common
// model. Adapters do not retry; any error means the exchange is absent from
// the cycle.
type ExchangeAdapter interface {
	Exchange() Exchange
	FetchBookTickers(ctx context.Context) ([]BookTicker, error)
}

// DepthSource fetches order-book depth for a symbol.
type DepthSource interface {
	FetchOrderbookDepth(ctx context.Context, symbol string, limit int) (OrderbookDepth, error)
}

// SymbolSource fetches exchange reference data.
type SymbolSource interface {
	FetchExchangeInfo(ctx context.Context) ([]Symbol, error)
}

// StatisticsSource fetches 24h price change statistics for every symbol.
type StatisticsSource interface {
	FetchPriceChangeStatistics(ctx context.Context) ([]PriceChangeStatistic, error)
}

// NotificationSink delivers one opportunity to one subscriber. Delivery is
// best-effort.
type NotificationSink interface {
	Notify(ctx context.Context, subscriberID int64, opp ArbOpportunity) error
}

// AlertSink receives operational failures.
type AlertSink interface {
	Raise(ctx context.Context, subject, message string) error
}

// OpportunityRecorder receives every cycle's detected opportunities after
// routing (signal bus, journal, dashboard stream).
type OpportunityRecorder interface {
	Name() string
	RecordOpportunities(ctx context.Context, summary CycleSummary, opps []ArbOpportunity) error
}
