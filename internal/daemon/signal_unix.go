//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// terminate sends SIGTERM so the daemon can drain gracefully
func terminate(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
