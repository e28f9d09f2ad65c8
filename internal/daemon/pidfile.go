// Package daemon tracks the interval-sweep process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ning0612/Cloudconvert/internal/lock"
)

// ErrNotRunning indicates no live daemon owns the PID file
var ErrNotRunning = errors.New("daemon is not running")

// PIDFile manages the daemon process ID file
type PIDFile struct {
	path string
}

// NewPIDFile creates a new PID file manager
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file location
func (p *PIDFile) Path() string { return p.path }

// Write records the current process ID, replacing a PID file left by a dead process
func (p *PIDFile) Write() error {
	if pid, err := p.Read(); err == nil && pid != os.Getpid() && lock.ProcessExists(pid) {
		return fmt.Errorf("daemon is already running as PID %d (%s)", pid, p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read reads the PID from the PID file
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: no PID file at %s", ErrNotRunning, p.path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	raw := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %q", p.path, raw)
	}
	return pid, nil
}

// Remove removes the PID file if it still names this process
func (p *PIDFile) Remove() error {
	if pid, err := p.Read(); err == nil && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Running returns the daemon PID, or ErrNotRunning
func (p *PIDFile) Running() (int, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, err
	}
	if !lock.ProcessExists(pid) {
		return 0, fmt.Errorf("%w: PID %d from %s is gone", ErrNotRunning, pid, p.path)
	}
	return pid, nil
}

// Stop asks the daemon to shut down
// The daemon finishes its current sweep first, so Stop returns before it exits.
func (p *PIDFile) Stop() (int, error) {
	pid, err := p.Running()
	if err != nil {
		return 0, err
	}
	if err := terminate(pid); err != nil {
		return pid, err
	}
	return pid, nil
}
