// Package router decides which subscribers hear about which opportunities.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rusel95/interexchangebot/internal/arbitrage"
	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/metrics"
)

// Policy controls repeat notifications for an opportunity that persists
// across cycles.
type Policy int

const (
	// PolicyOnChange delivers an opportunity once and suppresses it while it
	// persists in consecutive cycles.
	PolicyOnChange Policy = iota
	// PolicyAlways delivers every qualifying opportunity every cycle.
	PolicyAlways
)

// ParsePolicy parses "on_change" or "always".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on_change":
		return PolicyOnChange, nil
	case "always":
		return PolicyAlways, nil
	default:
		return PolicyOnChange, fmt.Errorf("router: unknown policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyAlways {
		return "always"
	}
	return "on_change"
}

// Outcome labels.
const (
	outcomeSent       = "sent"
	outcomeSuppressed = "suppressed"
	outcomeFailed     = "failed"
	outcomeFiltered   = "below_threshold"
)

// SubscriberSource lists the current subscribers.
type SubscriberSource interface {
	List() []domain.Subscriber
}

// Config holds routing parameters.
type Config struct {
	Policy      Policy
	ResendAfter time.Duration
	// MinProfit is the minimum profit percentage an opportunity needs to be
	// delivered to a subscriber in the given mode.
	MinProfit map[domain.Mode]float64
}

// Result counts the decisions of one Route call.
type Result struct {
	Subscribers int
	Sent        int
	Suppressed  int
	Failed      int
}

// Router matches opportunities to alerting subscribers.
type Router struct {
	subs   SubscriberSource
	sink   domain.NotificationSink
	dedup  *Dedup
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Router.
func New(subs SubscriberSource, sink domain.NotificationSink, cfg Config, logger *slog.Logger) *Router {
	return &Router{
		subs:   subs,
		sink:   sink,
		dedup:  NewDedup(cfg.ResendAfter),
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Forget clears delivery history for a subscriber so its next qualifying
// opportunity is delivered regardless of the previous cycle.
func (r *Router) Forget(subscriberID int64) {
	r.dedup.Forget(subscriberID)
}

// HandleModeChange is a subscriber.ModeChangeFunc that clears delivery
// history whenever a subscriber stops alerting.
func (r *Router) HandleModeChange(sub domain.Subscriber, _ domain.Mode) {
	if !sub.Mode.Alerting() {
		r.Forget(sub.ID)
	}
}

// Route delivers this cycle's opportunities to every alerting subscriber.
// The subscriber set is read once up front. Sink failures are logged and
// counted; the failed opportunity is retried on the next cycle.
func (r *Router) Route(ctx context.Context, opps []domain.ArbOpportunity) Result {
	subs := r.subs.List()
	now := r.now()

	var res Result
	active := make(map[int64]struct{}, len(subs))
	for _, sub := range subs {
		if sub.Mode.Alerting() {
			active[sub.ID] = struct{}{}
		}
	}
	res.Subscribers = len(active)

	for _, sub := range subs {
		if !sub.Mode.Alerting() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		sent, suppressed, failed := r.routeOne(ctx, sub, opps, now)
		res.Sent += sent
		res.Suppressed += suppressed
		res.Failed += failed
	}
	r.dedup.Retain(active)

	metrics.NotificationsTotal.WithLabelValues(outcomeSent).Add(float64(res.Sent))
	metrics.NotificationsTotal.WithLabelValues(outcomeSuppressed).Add(float64(res.Suppressed))
	metrics.NotificationsTotal.WithLabelValues(outcomeFailed).Add(float64(res.Failed))
	return res
}

func (r *Router) routeOne(ctx context.Context, sub domain.Subscriber, opps []domain.ArbOpportunity, now time.Time) (sent, suppressed, failed int) {
	minProfit := r.cfg.MinProfit[sub.Mode]
	delivered := make(map[domain.OpportunityKey]time.Time)

	candidates := arbitrage.Filter(opps, minProfit)
	metrics.NotificationsTotal.WithLabelValues(outcomeFiltered).Add(float64(len(opps) - len(candidates)))

	for _, opp := range candidates {
		key := opp.Key()

		if r.cfg.Policy == PolicyOnChange {
			if sentAt, skip := r.dedup.Suppress(sub.ID, key, now); skip {
				delivered[key] = sentAt
				suppressed++
				continue
			}
		}

		if err := r.sink.Notify(ctx, sub.ID, opp); err != nil {
			failed++
			r.logger.Warn("notification failed",
				slog.Int64("subscriber", sub.ID),
				slog.String("opportunity", key.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		delivered[key] = now
		sent++
	}

	if r.cfg.Policy == PolicyOnChange {
		r.dedup.Commit(sub.ID, delivered)
	}
	return sent, suppressed, failed
}
