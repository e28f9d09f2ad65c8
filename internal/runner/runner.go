// Package runner executes external command line tools.
//
// Arguments are always passed as an argument vector, never through a shell,
// so file names containing spaces or shell metacharacters are safe.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/logger"
)

// Runner starts external processes
type Runner interface {
	// Run executes name with args and returns its standard output with trailing whitespace trimmed
	// Returns *domain.ExecutionError if the binary is missing or exits non-zero
	Run(ctx context.Context, name string, args ...any) (string, error)

	// RunQuiet executes name with args and discards standard output
	RunQuiet(ctx context.Context, name string, args ...any) error
}

// ExecRunner implements Runner with os/exec
type ExecRunner struct {
	// Stderr optionally mirrors the child's standard error (e.g. os.Stderr in verbose mode)
	Stderr io.Writer
}

// New creates an ExecRunner
func New() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, name string, args ...any) (string, error) {
	var stdout bytes.Buffer
	if err := r.exec(ctx, &stdout, name, args); err != nil {
		return "", err
	}
	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

// RunQuiet implements Runner
func (r *ExecRunner) RunQuiet(ctx context.Context, name string, args ...any) error {
	return r.exec(ctx, io.Discard, name, args)
}

func (r *ExecRunner) exec(ctx context.Context, stdout io.Writer, name string, args []any) error {
	argv := Stringify(args)

	logger.Get().Debug("exec", "command", name, "args", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	execErr := &domain.ExecutionError{
		Command:  name,
		Args:     argv,
		ExitCode: -1,
		Stderr:   stderr.String(),
		Err:      err,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		execErr.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound):
		execErr.Err = fmt.Errorf("%w: %s", domain.ErrBinaryNotFound, name)
	}
	return execErr
}

// Stringify converts arguments to their textual form
// Strings pass through unchanged, fmt.Stringer values use String, everything else fmt.Sprint
func Stringify(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		case fmt.Stringer:
			out = append(out, v.String())
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// LookPath reports whether name can be executed
func LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrBinaryNotFound, name)
	}
	return nil
}

var _ Runner = (*ExecRunner)(nil)
