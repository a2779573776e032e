package usecase

import (
	"context"
	"log/slog"
	"time"

	"ResourceCurator/internal/ports"
)

// Scheduler wires the interval driver with the weekly cycle.
type Scheduler struct {
	driver ports.Scheduler
	cycle  *Cycle
	opts   CycleOptions
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, cycle *Cycle, opts CycleOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, cycle: cycle, opts: opts, logger: logger}
}

// Start registers the cycle with the provided scheduler. A failed cycle is
// logged and the next tick still runs.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.cycle == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.cycle.Run(ctx, trigger, s.opts)
		if err != nil {
			s.logger.Error("scheduled cycle failed", "run", report.RunID, "error", err)
			return
		}
		s.logger.Info("scheduled cycle finished", "run", report.RunID, "status", report.Status)
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
