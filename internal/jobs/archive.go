package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// ArchiveJob moves journal rows older than the retention period to object
// storage.
type ArchiveJob struct {
	archiver  domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiveJob creates an ArchiveJob keeping retentionDays of journal in
// the database.
func NewArchiveJob(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver:  archiver,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archive_job")),
	}
}

// Name returns the job name.
func (j *ArchiveJob) Name() string { return "archive" }

// Run archives every journal row detected before now minus the retention.
func (j *ArchiveJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	n, err := j.archiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("jobs: archive opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logger.Info("archive run complete",
		slog.Int64("archived", n),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
