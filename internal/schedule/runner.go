package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Clock abstracts time so the loop can be driven in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Job is the action performed on every fire.
type Job func(ctx context.Context) error

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Name     string
	Schedule cronlib.Schedule
	Job      Job
	Clock    Clock
	Logger   *slog.Logger
}

// Runner waits for each fire time of a schedule and runs a job.
type Runner struct {
	name     string
	schedule cronlib.Schedule
	job      Job
	clock    Clock
	logger   *slog.Logger
}

// NewRunner creates a runner. Clock defaults to RealClock.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = RealClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "daily"
	}
	return &Runner{
		name:     cfg.Name,
		schedule: cfg.Schedule,
		job:      cfg.Job,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("runner", cfg.Name),
	}
}

// NextRun returns the next fire time after now.
func (r *Runner) NextRun() time.Time {
	return r.schedule.Next(r.clock.Now())
}

// Run blocks until ctx is cancelled. A failing or panicking job is logged
// and the loop moves on to the next fire time.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("scheduler started", "schedule", fmt.Sprint(r.schedule))

	for {
		now := r.clock.Now()
		next := r.schedule.Next(now)
		if next.IsZero() {
			r.logger.Error("schedule has no future fire time, stopping")
			return
		}
		wait := next.Sub(now)
		r.logger.Info("next fire scheduled", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopped")
			return
		case <-r.clock.After(wait):
		}
		if ctx.Err() != nil {
			r.logger.Info("scheduler stopped")
			return
		}

		r.fire(ctx, next)
	}
}

func (r *Runner) fire(ctx context.Context, at time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("scheduled job panicked", "at", at.Format(time.RFC3339), "panic", rec)
		}
	}()

	start := r.clock.Now()
	if err := r.job(ctx); err != nil {
		r.logger.Error("scheduled job failed", "at", at.Format(time.RFC3339), "err", err)
		return
	}
	r.logger.Info("scheduled job done", "at", at.Format(time.RFC3339), "took", r.clock.Now().Sub(start))
}
