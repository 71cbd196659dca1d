package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cytopipe/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <project>",
		Short: "Show recent pipeline runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := openProject(args[0])
			if err != nil {
				return err
			}
			store, err := runlog.Open(layout)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				elapsed := ""
				if run.FinishedAt != nil {
					elapsed = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				rows = append(rows, []string{
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Command,
					run.Options,
					elapsed,
					strconv.Itoa(run.Counts.Done),
					strconv.Itoa(run.Counts.Skipped),
					strconv.Itoa(run.Counts.Blocked),
					strconv.Itoa(run.Counts.Failed),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"STARTED", "COMMAND", "OPTIONS", "ELAPSED", "DONE", "SKIPPED", "BLOCKED", "FAILED"},
				rows, 5, 6, 7, 8))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}
