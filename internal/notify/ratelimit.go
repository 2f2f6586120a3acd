package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// ErrRateLimited is returned when a subscriber's delivery slot is taken. The
// router counts it as a failed send, so the opportunity is retried next cycle.
var ErrRateLimited = errors.New("notify: rate limited")

// Limiter decides whether one more request under key fits in limit per window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitedSink spaces deliveries to the same subscriber at least window
// apart.
type RateLimitedSink struct {
	next    domain.NotificationSink
	limiter Limiter
	window  time.Duration
}

// NewRateLimitedSink wraps next. A non-positive window disables limiting.
func NewRateLimitedSink(next domain.NotificationSink, limiter Limiter, window time.Duration) *RateLimitedSink {
	return &RateLimitedSink{next: next, limiter: limiter, window: window}
}

// Notify delivers when the subscriber has a free slot and returns
// ErrRateLimited otherwise. It never blocks on the limiter.
func (s *RateLimitedSink) Notify(ctx context.Context, subscriberID int64, opp domain.ArbOpportunity) error {
	if s.window > 0 && s.limiter != nil {
		key := "notify:" + strconv.FormatInt(subscriberID, 10)
		allowed, err := s.limiter.Allow(ctx, key, 1, s.window)
		if err != nil {
			return fmt.Errorf("notify: rate limit %d: %w", subscriberID, err)
		}
		if !allowed {
			return fmt.Errorf("%w: subscriber %d %s", ErrRateLimited, subscriberID, opp.Key())
		}
	}
	return s.next.Notify(ctx, subscriberID, opp)
}
