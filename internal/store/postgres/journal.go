package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// Journal implements domain.OpportunityRecorder by persisting every detected
// opportunity of a cycle to an OpportunityStore.
type Journal struct {
	store domain.OpportunityStore
	newID func() string
}

// NewJournal creates a Journal writing to store.
func NewJournal(store domain.OpportunityStore) *Journal {
	return &Journal{store: store, newID: uuid.NewString}
}

// Name returns the recorder identifier.
func (j *Journal) Name() string { return "postgres" }

// RecordOpportunities inserts one row per opportunity tagged with the cycle ID.
func (j *Journal) RecordOpportunities(ctx context.Context, summary domain.CycleSummary, opps []domain.ArbOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	entries := make([]domain.JournalEntry, len(opps))
	for i, opp := range opps {
		entries[i] = domain.JournalEntry{
			ID:             j.newID(),
			CycleID:        summary.CycleID,
			ArbOpportunity: opp,
		}
	}
	return j.store.Insert(ctx, entries)
}

// Compile-time interface check.
var _ domain.OpportunityRecorder = (*Journal)(nil)
