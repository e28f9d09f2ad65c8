package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/progress"
	"github.com/Ning0612/Cloudconvert/internal/service"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		asJSON      bool
		showSkipped bool
	)

	cmd := &cobra.Command{
		Use:   "plan [target]",
		Short: "List the videos a run would convert, without converting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.NewConvertService(a.cfg, service.Deps{})
			if err != nil {
				return err
			}

			plan, err := svc.Plan(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			for _, e := range plan.Convert {
				fmt.Printf("convert  %9s  %s -> %s\n", progress.FormatBytes(e.Size), e.Source, e.Output)
			}
			if showSkipped {
				for _, e := range plan.Skipped {
					fmt.Printf("skip     %9s  %s (%s)\n", progress.FormatBytes(e.Size), e.Source, e.Reason)
				}
			}
			fmt.Printf("%s: %d to convert, %s total; %d skipped; %d files in %d directories\n",
				plan.Root, len(plan.Convert), progress.FormatBytes(plan.TotalBytes),
				len(plan.Skipped), plan.Files, plan.Directories)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	cmd.Flags().BoolVar(&showSkipped, "skipped", false, "also list videos that need no conversion")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
