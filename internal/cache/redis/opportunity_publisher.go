package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// Channel and stream names used for opportunity fan-out.
const (
	OpportunityChannel = "arb"
	OpportunityStream  = "arb:stream"
)

// OpportunityEvent is the JSON payload published once per cycle.
type OpportunityEvent struct {
	Event         string                  `json:"event"`
	CycleID       string                  `json:"cycle_id"`
	CompletedAt   time.Time               `json:"completed_at"`
	Exchanges     []string                `json:"exchanges"`
	Opportunities []domain.ArbOpportunity `json:"opportunities"`
}

// OpportunityPublisher implements domain.OpportunityRecorder by publishing
// each cycle's opportunities on the signal bus and appending them to a
// durable stream.
type OpportunityPublisher struct {
	bus domain.SignalBus
}

// NewOpportunityPublisher creates an OpportunityPublisher.
func NewOpportunityPublisher(bus domain.SignalBus) *OpportunityPublisher {
	return &OpportunityPublisher{bus: bus}
}

// Name returns the recorder identifier.
func (p *OpportunityPublisher) Name() string { return "redis" }

// RecordOpportunities publishes a cycle event. Cycles without opportunities
// are not published.
func (p *OpportunityPublisher) RecordOpportunities(ctx context.Context, summary domain.CycleSummary, opps []domain.ArbOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	payload, err := json.Marshal(OpportunityEvent{
		Event:         "opportunities",
		CycleID:       summary.CycleID,
		CompletedAt:   summary.CompletedAt,
		Exchanges:     summary.Succeeded,
		Opportunities: opps,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity event: %w", err)
	}

	if err := p.bus.Publish(ctx, OpportunityChannel, payload); err != nil {
		return err
	}
	return p.bus.StreamAppend(ctx, OpportunityStream, payload)
}

// Compile-time interface check.
var _ domain.OpportunityRecorder = (*OpportunityPublisher)(nil)
