package domain

import (
	"context"
	"time"
)

// JournalEntry is a persisted opportunity.
type JournalEntry struct {
	ID      string `json:"id"`
	CycleID string `json:"cycle_id"`
	ArbOpportunity
}

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, entries []JournalEntry) error
	ListRecent(ctx context.Context, limit int) ([]JournalEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]JournalEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
