package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AlertEntry is a persisted operator alert.
type AlertEntry struct {
	ID        int64          `json:"id"`
	Subject   string         `json:"subject"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AlertLog keeps a durable history of operator alerts. It satisfies the
// notify.Sender interface so it can sit alongside the chat senders.
type AlertLog struct {
	pool *pgxpool.Pool
}

// NewAlertLog creates a new AlertLog backed by the given connection pool.
func NewAlertLog(pool *pgxpool.Pool) *AlertLog {
	return &AlertLog{pool: pool}
}

// Name returns the sender identifier.
func (s *AlertLog) Name() string { return "postgres" }

// Send appends an alert. The message body is stored in the JSONB detail
// column under "message".
func (s *AlertLog) Send(ctx context.Context, title, message string) error {
	return s.Log(ctx, title, map[string]any{"message": message})
}

// Log appends an alert with an arbitrary detail map.
func (s *AlertLog) Log(ctx context.Context, subject string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal alert detail: %w", err)
	}

	const query = `INSERT INTO alert_log (subject, detail) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, subject, detailJSON); err != nil {
		return fmt.Errorf("postgres: log alert %s: %w", subject, err)
	}
	return nil
}

// List returns the most recent alerts, newest first.
func (s *AlertLog) List(ctx context.Context, limit int) ([]AlertEntry, error) {
	query := `SELECT id, subject, detail, created_at FROM alert_log ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var entries []AlertEntry
	for rows.Next() {
		var e AlertEntry
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.Subject, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal alert detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alerts rows: %w", err)
	}
	return entries, nil
}
