package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/daemon"
)

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask a running daemon to stop after its current sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := daemon.NewPIDFile(a.cfg.PIDFile()).Stop()
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Println("daemon is not running")
				return nil
			}
			if err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}
			fmt.Printf("sent stop to daemon (PID %d); it exits once the current sweep finishes\n", pid)
			return nil
		},
	}
}
