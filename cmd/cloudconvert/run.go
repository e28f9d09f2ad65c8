package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/logger"
	"github.com/Ning0612/Cloudconvert/internal/progress"
	"github.com/Ning0612/Cloudconvert/internal/service"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		workers  int
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "run [target...]",
		Short: "Convert every video under the target that needs it",
		Long: `Discover videos under each target (drive:path, a path on the configured drive,
or the configured root when omitted), convert them and upload the results.

Without --interval the command exits once the queue has drained. With --interval
it keeps sweeping, writes a PID file, and serves the status socket between sweeps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers > 0 {
				a.cfg.Pipeline.Workers = workers
			}

			svc, err := service.NewConvertService(a.cfg, service.Deps{})
			if err != nil {
				return err
			}
			if err := svc.CheckTools(); err != nil {
				return err
			}
			if !quiet {
				svc.SetProgressReporter(progress.NewCallbackReporter(printProgress))
			}

			if interval > 0 {
				return runDaemon(cmd.Context(), a, svc, interval, args)
			}
			return runOnce(cmd.Context(), a, svc, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "sweep again every interval (e.g. 30m) until stopped")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "override pipeline.workers")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no per-job progress lines")
	return cmd
}

// runOnce sweeps each target once and prints one summary line per target to out
func runOnce(parent context.Context, a *app, svc *service.ConvertService, targets []string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers, err := service.StartServers(ctx, a.cfg, svc)
	if err != nil {
		return err
	}
	defer servers.Close()

	if len(targets) == 0 {
		targets = []string{""}
	}

	var failed int64
	for _, target := range targets {
		stats, err := svc.Run(ctx, target)
		if err != nil {
			return err
		}
		failed += stats.Failed
		fmt.Fprintf(out, "%s: %d converted, %d failed in %s\n",
			svc.LastRun().Target, stats.Completed, stats.Failed, stats.Duration.Round(time.Second))
	}

	if failed > 0 {
		return fmt.Errorf("%d job(s) failed", failed)
	}
	return nil
}

// runDaemon sweeps until a signal arrives
// The first signal lets the current sweep finish; a second one cancels it.
func runDaemon(parent context.Context, a *app, svc *service.ConvertService, interval time.Duration, targets []string) error {
	ctx, cancel := context.WithCancel(contextOrBackground(parent))
	defer cancel()

	d, err := service.NewDaemonService(a.cfg, svc)
	if err != nil {
		return err
	}
	if err := d.Start(ctx, interval, targets); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan error, 1)
	select {
	case <-sigCh:
		logger.Get().Info("shutdown requested, finishing current sweep")
		go func() { stopped <- d.Stop() }()
	case <-d.Done():
		return d.Stop()
	}

	select {
	case err := <-stopped:
		return err
	case <-sigCh:
		logger.Get().Warn("second signal, aborting current sweep")
		cancel()
		if err := <-stopped; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func printProgress(u progress.Update) {
	switch u.Type {
	case progress.UpdateEnqueued:
		fmt.Fprintf(os.Stderr, "queued     %s (%s)\n", u.Source, progress.FormatBytes(u.Size))
	case progress.UpdateStart:
		fmt.Fprintf(os.Stderr, "[%d/%d] start %s\n", u.JobsCompleted+u.JobsFailed+1, u.JobsQueued, u.Source)
	case progress.UpdateStage:
		fmt.Fprintf(os.Stderr, "      %-10s %s (%s)\n", u.Stage, u.Source, u.Elapsed.Round(time.Second))
	case progress.UpdateComplete:
		fmt.Fprintf(os.Stderr, "done       %s %s\n", u.Source,
			progress.FormatProgress(int64(u.JobsCompleted+u.JobsFailed), int64(u.JobsQueued), 20))
	case progress.UpdateError:
		fmt.Fprintf(os.Stderr, "FAILED     %s: %v\n", u.Source, u.Error)
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
