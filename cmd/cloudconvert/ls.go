package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/progress"
	"github.com/Ning0612/Cloudconvert/internal/remote"
	"github.com/Ning0612/Cloudconvert/internal/service"
)

func newLsCmd(a *app) *cobra.Command {
	var (
		recursive bool
		sizes     bool
	)

	cmd := &cobra.Command{
		Use:   "ls [target]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := service.NewConvertService(a.cfg, service.Deps{})
			if err != nil {
				return err
			}

			drive, p := svc.Resolve(firstArg(args))
			var root *remote.Directory
			if recursive {
				// one listing call instead of one per directory
				if root, err = svc.Tree().BuildTree(ctx, drive, p); err != nil {
					return err
				}
			} else {
				root = svc.Tree().Dir(drive, p)
			}

			fmt.Println(root.FullPath())
			return remote.Walk(ctx, root, func(it remote.Item, depth int) error {
				indent := strings.Repeat("  ", depth)
				switch it := it.(type) {
				case *remote.Directory:
					line := indent + it.Name() + "/"
					if sizes {
						n, err := it.ItemCount(ctx)
						if err != nil {
							return err
						}
						total, err := it.TotalSize(ctx)
						if err != nil {
							return err
						}
						line += fmt.Sprintf("  (%d files, %s)", n, progress.FormatBytes(total))
					}
					fmt.Println(line)
					if !recursive {
						return remote.SkipDir
					}
				case *remote.File:
					fmt.Printf("%s%s  %s  %s\n", indent, it.Name(), progress.FormatBytes(it.Size()), it.MimeType())
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "list subdirectories too")
	cmd.Flags().BoolVar(&sizes, "sizes", false, "query file count and total size of each directory")
	return cmd
}
