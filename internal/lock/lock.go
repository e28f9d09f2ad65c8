// Package lock keeps two cloudconvert processes from sharing one temp directory.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ning0612/Cloudconvert/internal/domain"
)

const (
	// FileName is the name of the lock file inside the lock directory
	FileName = "cloudconvert.lock"

	// DefaultStaleTimeout applies only to locks written by another host,
	// whose process cannot be probed; a conversion run may take hours
	DefaultStaleTimeout = 12 * time.Hour
)

// Holder describes the process holding the run lock
type Holder struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Target    string    `json:"target,omitempty"` // drive:path being converted
}

// RunLock is a lock file created with O_EXCL
type RunLock struct {
	path         string
	staleTimeout time.Duration

	mu   sync.Mutex
	held *Holder
}

// New creates a run lock in dir, creating dir if needed
func New(dir string) (*RunLock, error) {
	if dir == "" {
		return nil, fmt.Errorf("lock directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &RunLock{
		path:         filepath.Join(dir, FileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// Path returns the lock file path
func (l *RunLock) Path() string { return l.path }

// SetStaleTimeout sets how old a foreign-host lock must be before it is ignored
func (l *RunLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire takes the lock for target
// Calling Acquire again on the instance that holds the lock only records the new target.
// Returns *HeldError (matching domain.ErrRunInProgress) when another process holds it.
func (l *RunLock) Acquire(target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held != nil {
		current, err := l.read()
		if err == nil && l.ownedBy(current) {
			updated := *l.held
			updated.Target = target
			if err := l.write(&updated); err != nil {
				return err
			}
			l.held = &updated
			return nil
		}
		// our file vanished or was replaced; start over
		l.held = nil
	}

	if existing, err := l.read(); err == nil {
		if !l.stale(existing) {
			return &HeldError{Holder: existing}
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	h := &Holder{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Target:    target,
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			// lost the race to another process
			existing, readErr := l.read()
			if readErr != nil {
				return fmt.Errorf("%w: lock created concurrently", domain.ErrRunInProgress)
			}
			return &HeldError{Holder: existing}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	l.held = h
	return nil
}

// Release removes the lock if this instance still owns it
func (l *RunLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held == nil {
		return nil
	}
	defer func() { l.held = nil }()

	current, err := l.read()
	if err != nil {
		return nil // already gone
	}
	if !l.ownedBy(current) {
		return fmt.Errorf("lock was taken over by PID %d on %s", current.PID, current.Hostname)
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Held reports whether a live lock exists, whoever holds it
func (l *RunLock) Held() bool {
	h, err := l.Holder()
	return err == nil && h != nil
}

// Holder returns the live lock holder, or nil if the lock is free or stale
func (l *RunLock) Holder() (*Holder, error) {
	h, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if l.stale(h) {
		return nil, nil
	}
	return h, nil
}

// ForceRelease removes the lock file regardless of owner
// Only for locks left behind by a crashed process.
func (l *RunLock) ForceRelease() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.held = nil
	return nil
}

func (l *RunLock) read() (*Holder, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}

	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &domain.ParseError{What: "lock file " + l.path, Err: err}
	}
	return &h, nil
}

func (l *RunLock) write(h *Holder) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0644)
}

// stale 判斷鎖是否失效：同主機看行程是否存在，跨主機才看逾時
func (l *RunLock) stale(h *Holder) bool {
	hostname, _ := os.Hostname()
	if h.Hostname == hostname {
		return !ProcessExists(h.PID)
	}
	return time.Since(h.StartTime) > l.staleTimeout
}

func (l *RunLock) ownedBy(h *Holder) bool {
	if l.held == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return h.PID == os.Getpid() &&
		h.Hostname == hostname &&
		h.StartTime.Equal(l.held.StartTime)
}

// HeldError reports a lock held by another live process
type HeldError struct {
	Holder *Holder
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("%v: held by PID %d on %s since %s",
		domain.ErrRunInProgress,
		e.Holder.PID,
		e.Holder.Hostname,
		e.Holder.StartTime.Format(time.RFC3339),
	)
	if e.Holder.Target != "" {
		msg += ", converting " + e.Holder.Target
	}
	return msg
}

func (e *HeldError) Unwrap() error {
	return domain.ErrRunInProgress
}
