// Package scheduler runs periodic jobs, each in its own failure domain.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/metrics"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function into a Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name.
func (f JobFunc) Name() string { return f.JobName }

// Run calls Fn.
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Config holds scheduler parameters.
type Config struct {
	// AlertCooldown is the minimum spacing between alerts for the same job.
	AlertCooldown time.Duration
	// Locker, when set, makes every run take a named lock so only one
	// process runs a given job at a time.
	Locker domain.LockManager
	// LockPrefix namespaces lock keys.
	LockPrefix string
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler drives registered jobs on independent tickers. A failing or
// panicking run is logged and forwarded to the alert sink; the job keeps its
// schedule.
type Scheduler struct {
	entries []entry
	alerts  domain.AlertSink
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// New creates a Scheduler. alerts may be nil.
func New(alerts domain.AlertSink, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.LockPrefix == "" {
		cfg.LockPrefix = "arbbot:lock:job:"
	}
	return &Scheduler{
		alerts:    alerts,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "scheduler")),
		lastAlert: make(map[string]time.Time),
	}
}

// Add registers job to run every interval. Jobs must be added before Run.
func (s *Scheduler) Add(job Job, interval time.Duration) {
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

// Run starts every job loop and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.entries) == 0 {
		return errors.New("scheduler: no jobs registered")
	}
	for _, e := range s.entries {
		s.logger.Info("job scheduled",
			slog.String("job", e.job.Name()),
			slog.Duration("interval", e.interval),
		)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range s.entries {
		g.Go(func() error {
			s.loop(ctx, e)
			return nil
		})
	}
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// loop runs the job immediately and then on every tick. Ticks that fire while
// a run is in progress are dropped.
func (s *Scheduler) loop(ctx context.Context, e entry) {
	_ = s.RunOnce(ctx, e.job, e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx, e.job, e.interval)
		}
	}
}

// RunOnce executes a single run of job with panic recovery, locking and
// failure alerting. lockTTL bounds how long the lock is held if the process
// dies mid-run. It returns the run's error for callers that need it; the
// error has already been logged.
func (s *Scheduler) RunOnce(ctx context.Context, job Job, lockTTL time.Duration) error {
	name := job.Name()

	if s.cfg.Locker != nil {
		release, err := s.cfg.Locker.Acquire(ctx, s.cfg.LockPrefix+name, lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Debug("job skipped, lock held elsewhere", slog.String("job", name))
			metrics.JobRunsTotal.WithLabelValues(name, "skipped").Inc()
			return nil
		}
		if err != nil {
			// Lock backend trouble should not stop the bot.
			s.logger.Warn("job lock unavailable, running unlocked",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		} else {
			defer release()
		}
	}

	start := s.now()
	err := s.safeRun(ctx, job)
	elapsed := s.now().Sub(start)
	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err == nil {
		metrics.JobRunsTotal.WithLabelValues(name, metrics.StatusOK).Inc()
		s.logger.Debug("job complete", slog.String("job", name), slog.Duration("elapsed", elapsed))
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	metrics.JobRunsTotal.WithLabelValues(name, metrics.StatusError).Inc()
	s.logger.Error("job failed",
		slog.String("job", name),
		slog.Duration("elapsed", elapsed),
		slog.String("error", err.Error()),
	)
	s.alert(ctx, name, err)
	return err
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v\n%s", job.Name(), r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}

// alert forwards a failure to the alert sink at most once per cooldown per
// job.
func (s *Scheduler) alert(ctx context.Context, name string, cause error) {
	if s.alerts == nil {
		return
	}

	now := s.now()
	s.mu.Lock()
	last, ok := s.lastAlert[name]
	if ok && s.cfg.AlertCooldown > 0 && now.Sub(last) < s.cfg.AlertCooldown {
		s.mu.Unlock()
		s.logger.Debug("job alert suppressed by cooldown", slog.String("job", name))
		return
	}
	s.lastAlert[name] = now
	s.mu.Unlock()

	subject := fmt.Sprintf("arbbot: job %s failed", name)
	if err := s.alerts.Raise(ctx, subject, cause.Error()); err != nil {
		s.logger.Warn("alert delivery failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
	}
}
