package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusel95/interexchangebot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSender struct {
	name  string
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, string, string) error {
	s.calls++
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestRaiseFansOutDespiteFailures(t *testing.T) {
	bad := &stubSender{name: "telegram", err: errors.New("403")}
	good := &stubSender{name: "email"}
	n := NewNotifier([]Sender{bad, good}, discardLogger())

	err := n.Raise(context.Background(), "job failed", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: 403")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
	assert.Equal(t, []string{"telegram", "email"}, n.Senders())
}

func TestRaiseWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, discardLogger())
	assert.NoError(t, n.Raise(context.Background(), "s", "m"))
}

func TestSubscriberSinkPostsToChat(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := NewSubscriberSink(NewTelegramClient(srv.URL, "123:abc"))
	opp := domain.ArbOpportunity{
		Symbol: "XYZUSDT", BuyExchange: domain.ExchangeKuCoin, SellExchange: domain.ExchangeBinance,
		BuyPrice: 98, SellPrice: 101, ProfitPercent: 3.0612,
	}
	require.NoError(t, sink.Notify(context.Background(), -1001234, opp))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-1001234", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Contains(t, got["text"], "*XYZUSDT* 3.061%")
	assert.Contains(t, got["text"], "buy on kucoin at 98")
	assert.Contains(t, got["text"], "sell on binance at 101")
}

func TestTelegramErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(NewTelegramClient(srv.URL, "t"), "42")
	err := s.Send(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by the user")
}

func TestDiscordSenderTruncates(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "job prices failed", strings.Repeat("x", 5000)))
	assert.LessOrEqual(t, len(content), discordContentLimit)
	assert.True(t, strings.HasPrefix(content, "**job prices failed**"))
	assert.True(t, strings.HasSuffix(content, "```"))
}

func TestTruncateContentKeepsRunesWhole(t *testing.T) {
	// "€" is three bytes, so a plain byte cut would split it.
	content := "**t**\n```\n" + strings.Repeat("€", 1000) + "\n```"
	out := truncateContent(content, discordContentLimit)

	assert.LessOrEqual(t, len(out), discordContentLimit)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "€\n```"))
	assert.Equal(t, "short", truncateContent("short", discordContentLimit))
}

func TestEmailSenderBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	e := NewEmailSender(EmailConfig{
		Host: "smtp.example.com", Port: 587, Username: "bot", Password: "pw",
		From: "bot@example.com", To: []string{"ops@example.com", "oncall@example.com"},
	})
	e.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "bot@example.com", from)
		return nil
	}

	require.NoError(t, e.Send(context.Background(), "job failed\r\nBcc: x@evil", "line1\nline2"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Len(t, gotTo, 2)
	assert.Contains(t, gotMsg, "Subject: job failed  Bcc: x@evil\r\n")
	assert.Contains(t, gotMsg, "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\nline1\r\nline2\r\n")
}

func TestEmailSenderCancelledContext(t *testing.T) {
	e := NewEmailSender(EmailConfig{Host: "h", Port: 25})
	e.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Send(ctx, "s", "m"), context.Canceled)
}

func TestFormatOpportunitySmallPrices(t *testing.T) {
	msg := FormatOpportunity(domain.ArbOpportunity{
		Symbol: "SHIBUSDT", BuyExchange: "a", SellExchange: "b",
		BuyPrice: 0.00001234, SellPrice: 0.00001301, ProfitPercent: 5.43,
		DetectedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	})
	assert.Contains(t, msg, "at 0.00001234")
	assert.Contains(t, msg, "_2024-05-06 07:08:09 UTC_")
}

type recordingLimiter struct {
	keys   []string
	window time.Duration
	deny   bool
	err    error
}

func (l *recordingLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	l.window = window
	return !l.deny, l.err
}

type countingSink struct{ calls int }

func (s *countingSink) Notify(context.Context, int64, domain.ArbOpportunity) error {
	s.calls++
	return nil
}

func TestRateLimitedSink(t *testing.T) {
	lim := &recordingLimiter{}
	next := &countingSink{}
	s := NewRateLimitedSink(next, lim, domain.ModeAlerting.Interval())

	require.NoError(t, s.Notify(context.Background(), 42, domain.ArbOpportunity{}))
	assert.Equal(t, []string{"notify:42"}, lim.keys)
	assert.Equal(t, time.Second, lim.window)
	assert.Equal(t, 1, next.calls)

	lim.err = errors.New("redis down")
	assert.Error(t, s.Notify(context.Background(), 42, domain.ArbOpportunity{}))
	assert.Equal(t, 1, next.calls)
}

func TestRateLimitedSinkDropsWithoutBlocking(t *testing.T) {
	lim := &recordingLimiter{deny: true}
	next := &countingSink{}
	s := NewRateLimitedSink(next, lim, time.Hour)

	start := time.Now()
	err := s.Notify(context.Background(), 7, domain.ArbOpportunity{Symbol: "BTCUSDT", BuyExchange: "kucoin", SellExchange: "binance"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Zero(t, next.calls)
}

func TestLogSinkLogsOpportunity(t *testing.T) {
	var buf strings.Builder
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	opp, err := domain.NewArbOpportunity("BTCUSDT", domain.ExchangeKuCoin, domain.ExchangeBinance, 98, 101, time.Now())
	require.NoError(t, err)
	require.NoError(t, sink.Notify(context.Background(), 42, opp))

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &rec))
	assert.Equal(t, "opportunity notification", rec["msg"])
	assert.Equal(t, float64(42), rec["subscriber"])
	assert.Contains(t, rec["message"], "BTCUSDT")
}
