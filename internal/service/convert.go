// Package service wires configuration, backends and the pipeline into the
// operations the CLI exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Cloudconvert/internal/adapter"
	"github.com/Ning0612/Cloudconvert/internal/adapter/local"
	"github.com/Ning0612/Cloudconvert/internal/adapter/rclone"
	"github.com/Ning0612/Cloudconvert/internal/config"
	"github.com/Ning0612/Cloudconvert/internal/core/planner"
	"github.com/Ning0612/Cloudconvert/internal/core/policy"
	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/job"
	"github.com/Ning0612/Cloudconvert/internal/lock"
	"github.com/Ning0612/Cloudconvert/internal/logger"
	"github.com/Ning0612/Cloudconvert/internal/pipeline"
	"github.com/Ning0612/Cloudconvert/internal/progress"
	"github.com/Ning0612/Cloudconvert/internal/remote"
	"github.com/Ning0612/Cloudconvert/internal/runner"
	"github.com/Ning0612/Cloudconvert/internal/transcode"
)

// Deps overrides the collaborators built from configuration; zero values use the real ones
type Deps struct {
	Runner     runner.Runner
	Fs         afero.Fs // local filesystem for temp files and the local backend
	Backend    adapter.Backend
	Transcoder transcode.Transcoder
}

// RunSummary describes one finished sweep
type RunSummary struct {
	Target    string
	StartedAt time.Time
	Stats     pipeline.Stats
	Err       error
}

// ConvertService runs conversion sweeps over the configured drive
type ConvertService struct {
	cfg        *config.Config
	fs         afero.Fs
	runner     runner.Runner
	backend    adapter.Backend
	transcoder transcode.Transcoder
	tree       *remote.Tree
	policy     policy.Policy
	lock       *lock.RunLock
	reporter   progress.Reporter

	current atomic.Pointer[pipeline.Pipeline]
	last    atomic.Pointer[RunSummary]
}

// NewConvertService creates a service from cfg
func NewConvertService(cfg *config.Config, deps Deps) (*ConvertService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if deps.Runner == nil {
		deps.Runner = runner.New()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}

	backend := deps.Backend
	if backend == nil {
		var err error
		if backend, err = NewBackend(cfg, deps.Runner, deps.Fs); err != nil {
			return nil, err
		}
	}

	tc := deps.Transcoder
	if tc == nil {
		var err error
		profile := transcode.Profile{
			Preset:  cfg.Transcode.Preset,
			Quality: cfg.Transcode.Quality,
			Speed:   cfg.Transcode.EncoderPreset,
		}
		if tc, err = transcode.New(cfg.Transcode.Tool, deps.Runner, cfg.Transcode.Binary, profile); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	runLock, err := lock.New(cfg.LockDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create run lock: %w", err)
	}

	return &ConvertService{
		cfg:        cfg,
		fs:         deps.Fs,
		runner:     deps.Runner,
		backend:    backend,
		transcoder: tc,
		tree:       remote.NewTree(backend),
		policy:     policy.New(cfg.Transcode.AcceptedExts, cfg.Transcode.OutputExt),
		lock:       runLock,
		reporter:   progress.NullReporter{},
	}, nil
}

// NewBackend creates the backend selected by cfg.Remote.Type
func NewBackend(cfg *config.Config, r runner.Runner, fs afero.Fs) (adapter.Backend, error) {
	switch cfg.Remote.Type {
	case domain.BackendRclone, "":
		return rclone.New(r, rclone.Options{
			Binary:         cfg.Remote.Binary,
			FastList:       cfg.Remote.FastList,
			CallsPerSecond: cfg.Remote.CallsPerSecond,
			ExtraFlags:     cfg.Remote.ExtraFlags,
		}), nil
	case domain.BackendLocal:
		b, err := local.New(fs, cfg.Remote.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to create local backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unsupported remote type %s", domain.ErrConfigInvalid, cfg.Remote.Type)
	}
}

// SetProgressReporter sets the reporter used by subsequent sweeps
func (s *ConvertService) SetProgressReporter(r progress.Reporter) {
	if r == nil {
		r = progress.NullReporter{}
	}
	s.reporter = r
}

// Backend returns the storage backend
func (s *ConvertService) Backend() adapter.Backend { return s.backend }

// Tree returns the remote tree over the backend
func (s *ConvertService) Tree() *remote.Tree { return s.tree }

// CheckTools verifies the external executables are installed
// Only meaningful with the exec runner; the local backend needs no rclone.
func (s *ConvertService) CheckTools() error {
	if _, ok := s.runner.(*runner.ExecRunner); !ok {
		return nil
	}

	var errs []error
	if _, ok := s.backend.(*rclone.Backend); ok {
		bin := s.cfg.Remote.Binary
		if bin == "" {
			bin = rclone.DefaultBinary
		}
		errs = append(errs, runner.LookPath(bin))
	}
	if b, ok := s.transcoder.(interface{ Binary() string }); ok {
		errs = append(errs, runner.LookPath(b.Binary()))
	}
	return errors.Join(errs...)
}

// Resolve maps a CLI target to drive and path
// "" is the configured root, "drive:path" is used as is, anything else is a
// path on the configured drive.
func (s *ConvertService) Resolve(target string) (drive, p string) {
	if target == "" {
		return s.cfg.Remote.Drive, s.cfg.Remote.Path
	}
	if d, rest, ok := domain.SplitRemote(target); ok {
		return d, domain.CleanRemotePath(rest)
	}
	return s.cfg.Remote.Drive, domain.CleanRemotePath(target)
}

// Plan lists what a sweep of target would convert
func (s *ConvertService) Plan(ctx context.Context, target string) (*planner.Plan, error) {
	drive, p := s.Resolve(target)
	return planner.New(s.tree, s.policy).Plan(ctx, drive, p)
}

// RunSweep implements scheduler.SweepRunner
func (s *ConvertService) RunSweep(ctx context.Context, target string) error {
	_, err := s.Run(ctx, target)
	return err
}

// Run converts everything under target that needs it and returns once the
// queue has drained
// The run lock is held for the duration so a second process cannot share the temp dir.
func (s *ConvertService) Run(ctx context.Context, target string) (pipeline.Stats, error) {
	drive, p := s.Resolve(target)
	root := domain.JoinRemote(drive, p)

	if err := s.lock.Acquire(root); err != nil {
		return pipeline.Stats{}, err
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			logger.Get().Warn("failed to release run lock", "error", err)
		}
	}()

	if err := s.fs.MkdirAll(s.cfg.Pipeline.TempDir, 0755); err != nil {
		return pipeline.Stats{}, fmt.Errorf("create temp dir: %w", err)
	}

	env := &job.Env{
		Backend:        s.backend,
		Transcoder:     s.transcoder,
		Fs:             s.fs,
		TempDir:        s.cfg.Pipeline.TempDir,
		TargetExt:      s.policy.TargetExt,
		VerifyChecksum: s.cfg.Pipeline.VerifyChecksum,
	}
	pl := pipeline.New(env, pipeline.Options{
		Workers:    s.cfg.Pipeline.Workers,
		QueueSize:  s.cfg.Pipeline.QueueSize,
		KeepFailed: s.cfg.Pipeline.KeepFailed,
	}, s.reporter)
	s.current.Store(pl)

	disc := &pipeline.Discoverer{
		Tree:      s.tree,
		Policy:    s.policy,
		Drive:     drive,
		Root:      p,
		BuildTree: s.cfg.Pipeline.BuildTree,
	}

	log := logger.With("target", root)
	log.Info("conversion run started",
		"backend", s.backend.Name(),
		"transcoder", s.transcoder.Name(),
		"workers", s.cfg.Pipeline.Workers,
	)

	started := time.Now()
	stats, err := pl.Run(ctx, disc.Discover)

	s.last.Store(&RunSummary{Target: root, StartedAt: started, Stats: stats, Err: err})

	args := []any{
		"discovered", stats.Enqueued,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
		"duration", stats.Duration.Round(time.Millisecond).String(),
	}
	switch {
	case err != nil:
		log.Error("conversion run aborted", append(args, "error", err)...)
	case stats.Failed > 0:
		log.Warn("conversion run finished with failures", args...)
	default:
		log.Info("conversion run finished", args...)
	}
	return stats, err
}

// Snapshot implements status.Source; empty between sweeps
func (s *ConvertService) Snapshot() []job.Summary {
	if pl := s.current.Load(); pl != nil {
		return pl.Snapshot()
	}
	return nil
}

// LastRun returns the most recent sweep, or nil
func (s *ConvertService) LastRun() *RunSummary {
	return s.last.Load()
}

// LockHolder returns the process holding the run lock, or nil
func (s *ConvertService) LockHolder() (*lock.Holder, error) {
	return s.lock.Holder()
}

// ForceUnlock removes a run lock left behind by a crashed process
func (s *ConvertService) ForceUnlock() error {
	return s.lock.ForceRelease()
}
