package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/Cloudconvert/internal/logger"
)

// IntervalScheduler runs sweeps periodically using time.Ticker
// Ticks that arrive while a sweep is still running are dropped, so sweeps never overlap.
type IntervalScheduler struct {
	config Config
	runner SweepRunner

	mu          sync.RWMutex
	running     bool
	sweeping    bool
	stopped     bool
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner SweepRunner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if runner == nil {
		return nil, fmt.Errorf("sweep runner cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	if s.config.RunImmediately {
		s.stats.nextRunTime = time.Now()
	} else {
		s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	}

	go s.run(ctx)
	return nil
}

// Done is closed when the loop has exited
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	log := logger.Component("scheduler", "interval", s.config.Interval.String())
	log.Info("interval scheduler started")

	if s.config.RunImmediately {
		s.sweep(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("interval scheduler stopped", "reason", ctx.Err())
			return
		case <-s.stopChan:
			log.Info("interval scheduler stopped", "reason", "stop requested")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs every target once, in order
func (s *IntervalScheduler) sweep(ctx context.Context) {
	s.mu.Lock()
	s.sweeping = true
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.mu.Unlock()

	targets := s.config.Targets
	if len(targets) == 0 {
		targets = []string{""}
	}

	var lastErr error
	failed := false
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := s.runner.RunSweep(ctx, target); err != nil {
			failed = true
			lastErr = err
			logger.Get().Error("sweep failed", "target", target, "error", err)
		}
	}

	s.mu.Lock()
	s.sweeping = false
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	if failed {
		s.stats.failedRuns++
		s.stats.lastError = lastErr.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	s.mu.Unlock()
}

// Stop gracefully stops the scheduler
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stoppedChan
	return nil
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		Sweeping:       s.sweeping,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
