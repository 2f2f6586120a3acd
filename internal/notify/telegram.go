package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// DefaultTelegramAPI is the Telegram Bot API root.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramClient posts messages through the Telegram Bot API.
type TelegramClient struct {
	apiURL string
	token  string
	client *http.Client
}

// NewTelegramClient creates a client for the given bot token. apiURL defaults
// to DefaultTelegramAPI. It uses an HTTP client with a 10-second timeout.
func NewTelegramClient(apiURL, token string) *TelegramClient {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	return &TelegramClient{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendMessage posts text to chatID using the sendMessage method with
// Markdown parsing.
func (t *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)

	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// TelegramSender delivers operator alerts to a fixed chat.
type TelegramSender struct {
	client *TelegramClient
	chatID string
}

// NewTelegramSender creates a TelegramSender posting to chatID.
func NewTelegramSender(client *TelegramClient, chatID string) *TelegramSender {
	return &TelegramSender{client: client, chatID: chatID}
}

// Send posts the alert with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return t.client.SendMessage(ctx, t.chatID, fmt.Sprintf("*%s*\n%s", title, message))
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// SubscriberSink delivers opportunities to each subscriber's own chat; the
// subscriber id is the Telegram chat id. It implements
// domain.NotificationSink.
type SubscriberSink struct {
	client *TelegramClient
}

// NewSubscriberSink creates a SubscriberSink.
func NewSubscriberSink(client *TelegramClient) *SubscriberSink {
	return &SubscriberSink{client: client}
}

// Notify formats opp and sends it to the subscriber's chat.
func (s *SubscriberSink) Notify(ctx context.Context, subscriberID int64, opp domain.ArbOpportunity) error {
	return s.client.SendMessage(ctx, strconv.FormatInt(subscriberID, 10), FormatOpportunity(opp))
}
