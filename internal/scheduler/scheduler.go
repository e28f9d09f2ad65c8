// Package scheduler repeats conversion sweeps on a timer.
package scheduler

import (
	"context"
	"time"
)

// Scheduler defines the interface for sweep schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop waits for the sweep in progress, then ends the loop
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	Sweeping       bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval is the pause between the end of one tick and the next
	Interval time.Duration

	// Targets are the drive:path roots to sweep; empty means the configured root
	Targets []string

	// RunImmediately starts the first sweep without waiting one interval
	RunImmediately bool
}

// SweepRunner executes one discovery-and-convert pass
type SweepRunner interface {
	// RunSweep converts everything under target that needs it and returns when the queue drains
	RunSweep(ctx context.Context, target string) error
}

// SweepFunc adapts a function to SweepRunner
type SweepFunc func(ctx context.Context, target string) error

// RunSweep implements SweepRunner
func (f SweepFunc) RunSweep(ctx context.Context, target string) error { return f(ctx, target) }
