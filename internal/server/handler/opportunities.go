package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// RecentOpportunities is the in-memory list of the latest opportunities.
type RecentOpportunities interface {
	RecentOpportunities(limit int) []domain.ArbOpportunity
}

// JournalReader reads persisted opportunities.
type JournalReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error)
}

// OpportunityHandler serves recently detected opportunities.
type OpportunityHandler struct {
	recent  RecentOpportunities
	journal JournalReader // optional; takes precedence over recent
	logger  *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler reading from the
// in-memory list.
func NewOpportunityHandler(recent RecentOpportunities, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{recent: recent, logger: logger}
}

// WithJournal serves opportunities from the persistent journal instead.
func (h *OpportunityHandler) WithJournal(journal JournalReader) *OpportunityHandler {
	h.journal = journal
	return h
}

type opportunitiesResponse struct {
	Source        string                `json:"source"`
	Opportunities []domain.JournalEntry `json:"opportunities"`
}

// ListRecent returns the most recent opportunities, newest first.
// GET /api/opportunities/recent?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)

	if h.journal != nil {
		entries, err := h.journal.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list journal opportunities failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list opportunities")
			return
		}
		if entries == nil {
			entries = []domain.JournalEntry{}
		}
		writeJSON(w, http.StatusOK, opportunitiesResponse{Source: "journal", Opportunities: entries})
		return
	}

	opps := h.recent.RecentOpportunities(limit)
	entries := make([]domain.JournalEntry, len(opps))
	for i, o := range opps {
		entries[i] = domain.JournalEntry{ArbOpportunity: o}
	}
	writeJSON(w, http.StatusOK, opportunitiesResponse{Source: "memory", Opportunities: entries})
}
