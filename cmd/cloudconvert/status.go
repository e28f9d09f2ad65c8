package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/status"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		addr    string
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running and queued conversions of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Status.Addr
			}

			ctx, cancel := contextWithTimeout(cmd.Context(), timeout)
			defer cancel()

			snap, err := status.Fetch(ctx, dialAddr(addr))
			if err != nil {
				return fmt.Errorf("no cloudconvert instance answering on %s: %w", addr, err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			status.Render(os.Stdout, snap, status.DefaultPalette)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "status server address (default: status.addr from the config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "give up after this long")
	return cmd
}

// dialAddr turns a listen address into one a client can dial
// 未指定 host 或 wildcard 一律改連 loopback
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = contextOrBackground(ctx)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
