package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cytopipe/internal/config"
	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/stage"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create <project>",
		Short: "Initialize a project directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			layout, err := project.Create(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized cytopipe project at %s\n", layout.Root())
			fmt.Fprintf(out, "Drop .cyz files into %s and run 'cytopipe list %s'.\n",
				layout.Dir(project.AreaRaw), args[0])
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project>",
		Short: "Reconcile the sample registry and show sample status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.openRun(args[0])
			if err != nil {
				return err
			}
			defer env.Close()

			if err := reconcileRegistry(env); err != nil {
				return err
			}
			reg, err := registry.Load(env.layout)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(reg.Rows))
			for _, row := range reg.Rows {
				id := row.SampleID()
				rows = append(rows, []string{
					id,
					row.Values[registry.ColumnTitle],
					yesNo(stage.ArtifactPresent(env.layout, stage.ArtifactDocument, id)),
					yesNo(stage.ArtifactPresent(env.layout, stage.ArtifactExport, id)),
					yesNo(stage.ArtifactPresent(env.layout, stage.ArtifactUploadReceipt, id)),
					yesNo(row.Missing()),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"SAMPLE", "TITLE", "CONVERTED", "EXPORTED", "UPLOADED", "MISSING"}, rows))
			fmt.Fprintf(out, "%d sample(s)\n", len(reg.Rows))
			return nil
		},
	}
}
