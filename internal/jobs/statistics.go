package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/statistics"
)

// StatisticsWriter stores computed volume statistics.
type StatisticsWriter interface {
	PutStatistics(stats []domain.VolumeEquivalence, at time.Time)
}

// StatisticsJob is the slow cycle: it refreshes 24h statistics and their
// stable-asset volume equivalence for status reporting.
type StatisticsJob struct {
	source  domain.StatisticsSource
	calc    *statistics.Calculator
	symbols statistics.SymbolLookup
	store   StatisticsWriter
	now     func() time.Time
	logger  *slog.Logger
}

// NewStatisticsJob creates the slow cycle job.
func NewStatisticsJob(
	source domain.StatisticsSource,
	calc *statistics.Calculator,
	symbols statistics.SymbolLookup,
	store StatisticsWriter,
	logger *slog.Logger,
) *StatisticsJob {
	return &StatisticsJob{
		source:  source,
		calc:    calc,
		symbols: symbols,
		store:   store,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "statistics_job")),
	}
}

// Name returns the job name.
func (j *StatisticsJob) Name() string { return "statistics" }

// Run fetches and recomputes statistics. On failure the previous statistics
// stay in place.
func (j *StatisticsJob) Run(ctx context.Context) error {
	stats, err := j.source.FetchPriceChangeStatistics(ctx)
	if err != nil {
		return fmt.Errorf("jobs: fetch price change statistics: %w", err)
	}

	at := j.now()
	eq := j.calc.Compute(stats, j.symbols, at)
	j.store.PutStatistics(eq, at)

	converted := 0
	for _, e := range eq {
		if e.Convertible {
			converted++
		}
	}
	j.logger.Info("statistics refreshed",
		slog.Int("symbols", len(eq)),
		slog.Int("convertible", converted),
	)
	return nil
}
