// Package scheduler implements the timezone-aware daily jobs: sending
// check-in invitations the morning before arrival and revoking door passcodes
// after checkout. Each scheduler polls on a short interval and decides per
// organization whether its local-time window has opened.
package scheduler

import (
	"context"
	"time"

	"guestflow/internal/types"
)

// Task is one pollable scheduler. RunOnce receives the poll time and is
// expected to swallow per-item errors; a returned error means the whole pass
// failed and is only logged.
type Task interface {
	Name() string
	RunOnce(ctx context.Context, now time.Time) error
}

// Runner drives a Task on a fixed interval until the context is cancelled.
// The first pass runs immediately so a restart does not wait a full interval.
type Runner struct {
	task     Task
	interval time.Duration
	clock    types.Clock
	logger   types.Logger
}

func NewRunner(task Task, interval time.Duration, logger types.Logger) *Runner {
	return &Runner{
		task:     task,
		interval: interval,
		clock:    types.RealClock{},
		logger:   logger.With("scheduler", task.Name()),
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("scheduler started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if err := r.task.RunOnce(ctx, r.clock.Now()); err != nil {
		r.logger.Error("scheduler pass failed", "error", err)
	}
}
