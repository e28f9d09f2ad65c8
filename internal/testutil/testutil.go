package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Cloudconvert/internal/runner"
)

// WriteFile creates a file (and its parents) on fs with the given content
func WriteFile(t *testing.T, fs afero.Fs, path string, content []byte) string {
	t.Helper()

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent of %s: %v", path, err)
	}
	if err := afero.WriteFile(fs, path, content, 0644); err != nil {
		t.Fatalf("failed to create test file %s: %v", path, err)
	}
	return path
}

// Exists reports whether path exists on fs, failing the test on unexpected errors
func Exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()

	ok, err := afero.Exists(fs, path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return ok
}

// Call is one invocation recorded by FakeRunner
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// FakeRunner is a runner.Runner that records calls and answers from a script
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call

	// Handler produces the result for each call; nil returns ("", nil)
	Handler func(ctx context.Context, call Call) (string, error)
}

// Run implements runner.Runner
func (f *FakeRunner) Run(ctx context.Context, name string, args ...any) (string, error) {
	call := Call{Name: name, Args: runner.Stringify(args)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.Handler
	f.mu.Unlock()

	if handler == nil {
		return "", nil
	}
	return handler(ctx, call)
}

// RunQuiet implements runner.Runner
func (f *FakeRunner) RunQuiet(ctx context.Context, name string, args ...any) error {
	_, err := f.Run(ctx, name, args...)
	return err
}

// Calls returns a copy of the recorded calls
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ runner.Runner = (*FakeRunner)(nil)

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}
