package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fovwatch/internal/config"
	"fovwatch/internal/manifest"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <run-folder>",
		Short: "List the FOVs a run manifest expects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			runFolder, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve run folder: %w", err)
			}

			run, err := manifest.Load(runFolder)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(run.FOVs))
			for _, fov := range run.FOVs {
				target := "sample"
				if fov.Moly {
					target = "moly standard"
				}
				rows = append(rows, []string{
					fov.ID,
					strconv.Itoa(fov.RunOrder),
					strconv.Itoa(fov.ScanIndex),
					target,
				})
			}

			fmt.Fprintf(out, "Run %s expects %d FOVs (%d calibration)\n",
				run.Name, run.TotalFOVs(), len(run.MolyFOVs()))
			fmt.Fprintln(out, renderTable(
				[]string{"FOV", "Run order", "Scan", "Target"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
