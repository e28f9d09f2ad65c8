package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/lock"
)

func newUnlockCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove a run lock left behind by a crashed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := lock.New(a.cfg.LockDir())
			if err != nil {
				return err
			}

			h, err := l.Holder()
			if err != nil && !force {
				return fmt.Errorf("%w (use --force to remove it anyway)", err)
			}
			if h != nil {
				// Holder 只回報仍有效的鎖
				if !force {
					return fmt.Errorf("lock %s is held by PID %d on %s since %s; use --force to remove it anyway",
						l.Path(), h.PID, h.Hostname, h.StartTime.Format(time.RFC3339))
				}
				fmt.Printf("removing lock of PID %d on %s (%s)\n", h.PID, h.Hostname, h.Target)
			}

			if err := l.ForceRelease(); err != nil {
				return err
			}
			fmt.Printf("%s is free\n", l.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove the lock even if its holder looks alive")
	return cmd
}
