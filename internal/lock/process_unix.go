//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// ProcessExists reports whether pid is a live process on this host
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: alive but owned by another user
	return errors.Is(err, syscall.EPERM)
}
