package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id::text, cycle_id, symbol, buy_exchange, sell_exchange,
	buy_price, sell_price, profit_percent, detected_at`

func scanOpportunityRows(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e      domain.JournalEntry
			buyEx  string
			sellEx string
		)
		if err := rows.Scan(
			&e.ID, &e.CycleID, &e.Symbol, &buyEx, &sellEx,
			&e.BuyPrice, &e.SellPrice, &e.ProfitPercent, &e.DetectedAt,
		); err != nil {
			return nil, err
		}
		e.BuyExchange = domain.Exchange(buyEx)
		e.SellExchange = domain.Exchange(sellEx)
		e.DetectedAt = e.DetectedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Insert stores journal entries in a single batch. Entries whose ID already
// exists are skipped.
func (s *OpportunityStore) Insert(ctx context.Context, entries []domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	const query = `
		INSERT INTO arb_opportunities (
			id, cycle_id, symbol, buy_exchange, sell_exchange,
			buy_price, sell_price, profit_percent, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query,
			e.ID, e.CycleID, e.Symbol, e.BuyExchange.String(), e.SellExchange.String(),
			e.BuyPrice, e.SellPrice, e.ProfitPercent, e.DetectedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns the most recent entries, newest first. A non-positive
// limit returns every row.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM arb_opportunities ORDER BY detected_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	entries, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent opportunities: %w", err)
	}
	return entries, nil
}

// ListBefore returns every entry detected strictly before the given time,
// oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.JournalEntry, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM arb_opportunities
		WHERE detected_at < $1 ORDER BY detected_at, id`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	entries, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities before: %w", err)
	}
	return entries, nil
}

// DeleteBefore removes every entry detected strictly before the given time
// and returns the number of rows removed.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM arb_opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
