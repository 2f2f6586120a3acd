// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbbot"

var (
	// Exchange fetch metrics
	ExchangeFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of book ticker fetches per exchange",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		},
		[]string{"exchange"},
	)

	ExchangeFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "fetch_total",
			Help:      "Book ticker fetches per exchange and outcome",
		},
		[]string{"exchange", "status"},
	)

	ExchangeTickers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "tickers",
			Help:      "Tickers returned by the latest successful fetch",
		},
		[]string{"exchange"},
	)

	// Detection metrics
	OpportunitiesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "opportunities_total",
			Help:      "Arbitrage opportunities detected",
		},
	)

	BestProfitPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "best_profit_percent",
			Help:      "Highest profit percentage in the latest cycle",
		},
	)

	// Router metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "notifications_total",
			Help:      "Routing decisions per outcome",
		},
		[]string{"outcome"},
	)

	// Scheduler metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Job runs per job and outcome",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of job runs",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// Depth refresh metrics
	DepthRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "depth",
			Name:      "refresh_total",
			Help:      "Order-book depth fetches per outcome",
		},
		[]string{"status"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients",
		},
	)
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
