package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler re-runs a job on a fixed interval until its context ends.
type Scheduler struct {
	interval time.Duration
	job      Job
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(interval time.Duration, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, job: job, logger: logger}
}

// Run executes the job immediately and then on every tick. It blocks until ctx
// is canceled. Runs never overlap: ticks that fire while a job is running are
// dropped. A failing job is logged and retried at the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "err", err, "elapsed", time.Since(start))
		return
	}
	s.logger.Info("scheduled run completed", "elapsed", time.Since(start), "next_in", s.interval)
}
