// Package rclone implements adapter.Backend by driving the rclone command line tool.
package rclone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/logger"
	"github.com/Ning0612/Cloudconvert/internal/metrics"
	"github.com/Ning0612/Cloudconvert/internal/runner"
)

// DefaultBinary is the executable looked up on PATH when Options.Binary is empty
const DefaultBinary = "rclone"

// Options configures the rclone backend
type Options struct {
	// Binary is the rclone executable (default "rclone")
	Binary string

	// FastList adds --fast-list to size, hash and transfer commands
	// lsjson always lists with --fast-list
	FastList bool

	// CallsPerSecond limits how often rclone is started (0 = unlimited)
	CallsPerSecond float64

	// ExtraFlags are appended to every command (e.g. --config /path/rclone.conf)
	ExtraFlags []string
}

// Backend drives rclone through a runner.Runner
type Backend struct {
	run     runner.Runner
	opts    Options
	limiter *rate.Limiter
}

// New creates an rclone backend
func New(r runner.Runner, opts Options) *Backend {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}

	b := &Backend{run: r, opts: opts}
	if opts.CallsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.CallsPerSecond), 1)
	}
	return b
}

// Name implements adapter.Backend
func (b *Backend) Name() string {
	return "rclone"
}

// List implements adapter.Backend
func (b *Backend) List(ctx context.Context, drive, dir string, recursive bool) ([]domain.Entry, error) {
	dir = domain.CleanRemotePath(dir)
	target := domain.JoinRemote(drive, dir) + "/"

	args := []any{"lsjson", target}
	if recursive {
		args = append(args, "-R")
	}

	out, err := b.output(ctx, "lsjson", args...)
	if err != nil {
		return nil, &domain.ListingError{Target: target, Err: err}
	}

	var entries []domain.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, &domain.ListingError{
			Target: target,
			Err:    &domain.ParseError{What: "lsjson output", Err: err},
		}
	}

	// lsjson paths are relative to the listed directory
	for i := range entries {
		entries[i].Path = domain.CleanRemotePath(path.Join(dir, entries[i].Path))
		if entries[i].Size < 0 {
			entries[i].Size = 0
		}
	}
	return entries, nil
}

type sizeResult struct {
	Count *int64 `json:"count"`
	Bytes *int64 `json:"bytes"`
}

// Size implements adapter.Backend
func (b *Backend) Size(ctx context.Context, location string) (int64, int64, error) {
	out, err := b.output(ctx, "size", "size", location, "--json")
	if err != nil {
		return 0, 0, &domain.ListingError{Target: location, Err: err}
	}

	var res sizeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return 0, 0, &domain.ParseError{What: "size output", Err: err}
	}

	var count, bytes int64
	if res.Count != nil && *res.Count > 0 {
		count = *res.Count
	}
	if res.Bytes != nil && *res.Bytes > 0 {
		bytes = *res.Bytes
	}
	return count, bytes, nil
}

// Hash implements adapter.Backend
func (b *Backend) Hash(ctx context.Context, location string) (string, error) {
	out, err := b.output(ctx, "md5sum", "md5sum", location)
	if err != nil {
		return "", &domain.ListingError{Target: location, Err: err}
	}

	// "<hexdigest>  <filename>"
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", &domain.ParseError{What: "md5sum output", Err: fmt.Errorf("%w: empty output for %s", domain.ErrNotFound, location)}
	}
	return fields[0], nil
}

// Copy implements adapter.Backend
func (b *Backend) Copy(ctx context.Context, src, dst string) error {
	return b.transfer(ctx, "copy", src, dst, "--checksum")
}

// Move implements adapter.Backend
func (b *Backend) Move(ctx context.Context, src, dst string) error {
	return b.transfer(ctx, "move", src, dst, "--checksum")
}

// Delete implements adapter.Backend
func (b *Backend) Delete(ctx context.Context, location string) error {
	if err := b.exec(ctx, "deletefile", "deletefile", location); err != nil {
		return &domain.TransferError{Op: "delete", Src: location, Err: err}
	}
	return nil
}

// Sync implements adapter.Backend
func (b *Backend) Sync(ctx context.Context, src, dst string, extra ...string) error {
	flags := append([]string{"--checksum"}, extra...)
	return b.transfer(ctx, "sync", src, dst, flags...)
}

func (b *Backend) transfer(ctx context.Context, op, src, dst string, flags ...string) error {
	if err := b.exec(ctx, op, op, src, dst, flags); err != nil {
		return &domain.TransferError{Op: op, Src: src, Dst: dst, Err: err}
	}
	return nil
}

// output runs rclone and returns stdout
func (b *Backend) output(ctx context.Context, op string, args ...any) (string, error) {
	var out string
	err := b.invoke(ctx, op, func() error {
		var err error
		out, err = b.run.Run(ctx, b.opts.Binary, b.withFlags(op, args)...)
		return err
	})
	return out, err
}

// exec runs rclone discarding stdout
func (b *Backend) exec(ctx context.Context, op string, args ...any) error {
	return b.invoke(ctx, op, func() error {
		return b.run.RunQuiet(ctx, b.opts.Binary, b.withFlags(op, args)...)
	})
}

func (b *Backend) invoke(ctx context.Context, op string, fn func() error) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	err := fn()
	metrics.RecordRemoteCommand(b.Name(), op, time.Since(start), err == nil)

	if err != nil {
		var execErr *domain.ExecutionError
		if errors.As(err, &execErr) {
			logger.Component("rclone").Debug("command failed", "operation", op, "exit_code", execErr.ExitCode)
		}
	}
	return err
}

func (b *Backend) withFlags(op string, args []any) []any {
	if op == "lsjson" || (b.opts.FastList && op != "deletefile") {
		args = append(args, "--fast-list")
	}
	if len(b.opts.ExtraFlags) > 0 {
		args = append(args, b.opts.ExtraFlags)
	}
	return args
}
