package usecase

import (
	"context"
	"log/slog"
	"time"

	"FeedbackFlow/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	owners   []string
	logger   *slog.Logger
}

// NewScheduler returns a helper that processes the backlog of owners on every tick.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, owners []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, owners: owners, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil || len(s.owners) == 0 {
		return nil
	}

	job := func(trigger time.Time) {
		for _, owner := range s.owners {
			if ctx.Err() != nil {
				return
			}
			if _, err := s.pipeline.ProcessPending(ctx, owner); err != nil {
				s.logger.Error("scheduled run failed", "owner", owner, "trigger", trigger, "error", err)
			}
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
