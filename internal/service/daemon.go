package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Ning0612/Cloudconvert/internal/config"
	"github.com/Ning0612/Cloudconvert/internal/daemon"
	"github.com/Ning0612/Cloudconvert/internal/job"
	"github.com/Ning0612/Cloudconvert/internal/logger"
	"github.com/Ning0612/Cloudconvert/internal/metrics"
	"github.com/Ning0612/Cloudconvert/internal/scheduler"
	"github.com/Ning0612/Cloudconvert/internal/status"
)

// Servers is the set of listeners that live alongside the pipeline
type Servers struct {
	cancel context.CancelFunc
	wg     conc.WaitGroup
	status net.Addr
}

// StartServers starts the status server and, if configured, the metrics endpoint
// The status listener is bound before returning so a port conflict fails fast.
func StartServers(ctx context.Context, cfg *config.Config, src status.Source) (*Servers, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Servers{cancel: cancel}

	if cfg.Status.Enabled {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", cfg.Status.Addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("status server listen %s: %w", cfg.Status.Addr, err)
		}
		s.status = ln.Addr()

		srv := status.NewServer(src)
		s.wg.Go(func() {
			if err := srv.Serve(ctx, ln); err != nil {
				logger.Component("status").Error("status server failed", "error", err)
			}
		})
	}

	if cfg.Metrics.Addr != "" {
		s.wg.Go(func() {
			logger.Component("metrics").Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Component("metrics").Error("metrics endpoint failed", "error", err)
			}
		})
	}

	return s, nil
}

// StatusAddr returns the bound status address, or nil when disabled
func (s *Servers) StatusAddr() net.Addr { return s.status }

// Close stops the servers and waits for open connections to finish
func (s *Servers) Close() {
	s.cancel()
	s.wg.Wait()
}

// DaemonService runs sweeps on an interval until stopped
type DaemonService struct {
	mu        sync.RWMutex
	cfg       *config.Config
	convert   *ConvertService
	pid       *daemon.PIDFile
	scheduler *scheduler.IntervalScheduler
	servers   *Servers
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	SchedulerStats *scheduler.Status
	Jobs           []job.Summary
	LastRun        *RunSummary
}

// NewDaemonService creates a daemon around convert
func NewDaemonService(cfg *config.Config, convert *ConvertService) (*DaemonService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if convert == nil {
		return nil, fmt.Errorf("convert service cannot be nil")
	}

	return &DaemonService{
		cfg:     cfg,
		convert: convert,
		pid:     daemon.NewPIDFile(cfg.PIDFile()),
	}, nil
}

// Start writes the PID file, starts the status server, and begins sweeping
// The first sweep starts immediately; later ones follow every interval.
func (d *DaemonService) Start(ctx context.Context, interval time.Duration, targets []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler != nil {
		return fmt.Errorf("daemon is already running")
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:       interval,
		Targets:        targets,
		RunImmediately: true,
	}, d.convert)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := d.pid.Write(); err != nil {
		return err
	}

	servers, err := StartServers(ctx, d.cfg, d.convert)
	if err != nil {
		d.pid.Remove()
		return err
	}

	if err := sched.Start(ctx); err != nil {
		servers.Close()
		d.pid.Remove()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.scheduler = sched
	d.servers = servers
	logger.Get().Info("daemon started", "interval", interval.String(), "pid_file", d.pid.Path())
	return nil
}

// Done is closed when the scheduler loop exits (context cancelled or Stop)
func (d *DaemonService) Done() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scheduler == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.scheduler.Done()
}

// Stop waits for the sweep in progress, then shuts everything down
func (d *DaemonService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler == nil {
		return fmt.Errorf("daemon is not running")
	}

	var errs []error
	if err := d.scheduler.Stop(); err != nil {
		// already exited through context cancellation
		logger.Get().Debug("scheduler stop", "error", err)
	}
	d.servers.Close()
	if err := d.pid.Remove(); err != nil {
		errs = append(errs, err)
	}

	d.scheduler = nil
	d.servers = nil
	logger.Get().Info("daemon stopped")
	return errors.Join(errs...)
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := &DaemonStatus{
		Running: d.scheduler != nil,
		Jobs:    d.convert.Snapshot(),
		LastRun: d.convert.LastRun(),
	}
	if d.scheduler != nil {
		st.SchedulerStats = d.scheduler.Status()
	}
	return st
}
