package usecase

import (
	"context"
	"time"

	"ArticlesReconciler/internal/ports"
)

// Scheduler wires the cron driver with the scan use case.
type Scheduler struct {
	driver ports.Scheduler
	scan   *Scan
}

// NewScheduler returns a helper to start/stop recurring scans.
func NewScheduler(driver ports.Scheduler, scan *Scan) *Scheduler {
	return &Scheduler{driver: driver, scan: scan}
}

// Start registers the scan with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.scan == nil {
		return nil
	}

	job := func(trigger time.Time) {
		_ = s.scan.Run(ctx, trigger)
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
