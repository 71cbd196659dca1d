package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cytopipe/internal/cleanup"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <project>",
		Short: "Remove regenerable intermediates of exported samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openRun(args[0])
			if err != nil {
				return err
			}
			defer env.Close()

			samples, err := selectedSamples(ctx, env.layout)
			if err != nil {
				return err
			}

			results := cleanup.Run(env.layout, samples, env.logger)
			rows := make([][]string, 0, len(results))
			removed := 0
			var failure error
			for _, result := range results {
				note := ""
				switch {
				case errors.Is(result.Err, cleanup.ErrExportMissing):
					note = "no export archive; intermediates kept"
				case result.Err != nil:
					note = result.Err.Error()
					failure = result.Err
				}
				removed += result.Removed
				rows = append(rows, []string{result.SampleID, strconv.Itoa(result.Removed), note})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"SAMPLE", "REMOVED", "NOTE"}, rows, 2))
			fmt.Fprintf(out, "%d artifact(s) removed\n", removed)
			return failure
		},
	}
}
