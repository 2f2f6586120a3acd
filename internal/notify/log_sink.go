package notify

import (
	"context"
	"log/slog"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// LogSink is the subscriber sink used when no Telegram token is configured:
// every delivery is logged instead of sent.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "log_sink"))}
}

// Notify logs opp for the subscriber.
func (s *LogSink) Notify(ctx context.Context, subscriberID int64, opp domain.ArbOpportunity) error {
	s.logger.InfoContext(ctx, "opportunity notification",
		slog.Int64("subscriber", subscriberID),
		slog.String("message", FormatOpportunity(opp)),
	)
	return nil
}

var _ domain.NotificationSink = (*LogSink)(nil)
