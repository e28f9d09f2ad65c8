package daemon_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Ning0612/Cloudconvert/internal/daemon"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	pidFile := daemon.NewPIDFile(filepath.Join(t.TempDir(), "run", "cloudconvert.pid"))

	if err := pidFile.Write(); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	defer pidFile.Remove()

	pid, err := pidFile.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Read() = %d, want %d", pid, os.Getpid())
	}

	running, err := pidFile.Running()
	if err != nil || running != os.Getpid() {
		t.Errorf("Running() = %d, %v", running, err)
	}

	// rewriting from the same process is allowed
	if err := pidFile.Write(); err != nil {
		t.Errorf("second Write() error = %v", err)
	}
}

func TestPIDFile_StalePIDReplaced(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	if err := os.WriteFile(pidPath, []byte("999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pidFile := daemon.NewPIDFile(pidPath)
	if _, err := pidFile.Running(); !errors.Is(err, daemon.ErrNotRunning) {
		t.Errorf("Running() error = %v, want ErrNotRunning", err)
	}

	if err := pidFile.Write(); err != nil {
		t.Fatalf("Write() over stale PID error = %v", err)
	}
	defer pidFile.Remove()

	if pid, _ := pidFile.Read(); pid != os.Getpid() {
		t.Errorf("Read() = %d, want current PID", pid)
	}
}

func TestPIDFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "abc\n"},
		{"zero", "0\n"},
		{"negative", "-4"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pidPath := filepath.Join(t.TempDir(), "test.pid")
			os.WriteFile(pidPath, []byte(tt.content), 0644)

			if _, err := daemon.NewPIDFile(pidPath).Read(); err == nil {
				t.Error("Read() should fail")
			}
		})
	}
}

func TestPIDFile_Missing(t *testing.T) {
	pidFile := daemon.NewPIDFile(filepath.Join(t.TempDir(), "none.pid"))

	if _, err := pidFile.Read(); !errors.Is(err, daemon.ErrNotRunning) {
		t.Errorf("Read() error = %v, want ErrNotRunning", err)
	}
	if _, err := pidFile.Stop(); !errors.Is(err, daemon.ErrNotRunning) {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
}

func TestPIDFile_Remove(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	pidFile := daemon.NewPIDFile(pidPath)

	if err := pidFile.Write(); err != nil {
		t.Fatal(err)
	}
	if err := pidFile.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after removal")
	}
	if err := pidFile.Remove(); err != nil {
		t.Errorf("Remove() on missing file error = %v", err)
	}
}

func TestPIDFile_RemoveKeepsForeignPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	other := strconv.Itoa(os.Getpid() + 1)
	os.WriteFile(pidPath, []byte(other), 0644)

	if err := daemon.NewPIDFile(pidPath).Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Error("PID file of another process must be left alone")
	}
}
