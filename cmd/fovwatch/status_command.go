package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fovwatch/internal/config"
	"fovwatch/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-folder>",
		Short: "Show ledger progress for a run folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runFolder, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve run folder: %w", err)
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			snapshot, err := store.LatestSnapshot(cmd.Context(), runFolder)
			if err != nil {
				if errors.Is(err, ledger.ErrRunNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No watch sessions recorded for %s\n", runFolder)
					return nil
				}
				return err
			}

			printSnapshot(cmd, snapshot)
			return nil
		},
	}
}

func printSnapshot(cmd *cobra.Command, snapshot *ledger.Snapshot) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	run := snapshot.Run
	fmt.Fprintf(out, "Run folder:  %s\n", run.RunFolder)
	fmt.Fprintf(out, "Session:     %s\n", run.SessionID)
	fmt.Fprintf(out, "Started:     %s\n", run.StartedAt.Local().Format(time.RFC1123))
	if run.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:   %s\n", run.CompletedAt.Local().Format(time.RFC1123))
	} else {
		fmt.Fprintln(out, "Completed:   in progress")
	}

	var processed, timedOut, failed int
	rows := make([][]string, 0, len(snapshot.FOVs))
	for _, fov := range snapshot.FOVs {
		switch fov.State {
		case ledger.StateProcessed:
			processed++
		case ledger.StateTimedOut:
			timedOut++
		case ledger.StateFailed:
			failed++
		}
		rows = append(rows, []string{
			strconv.Itoa(fov.Ordinal),
			fov.FOVID,
			colorizeState(fov.State, colorize),
			fov.RecordedAt.Local().Format("15:04:05"),
			fov.Detail,
		})
	}

	fmt.Fprintf(out, "Dispatched:  %d of %d (processed %d, timed out %d, failed %d)\n",
		len(snapshot.FOVs), run.TotalFOVs, processed, timedOut, failed)

	if len(rows) == 0 {
		fmt.Fprintln(out, "No FOVs dispatched yet")
		return
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Ordinal", "FOV", "State", "Recorded", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
}
