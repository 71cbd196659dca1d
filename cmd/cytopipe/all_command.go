package main

import (
	"context"

	"github.com/spf13/cobra"

	"cytopipe/internal/project"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/export"
	"cytopipe/internal/stages/extractcyto"
	"cytopipe/internal/stages/extractmeta"
	"cytopipe/internal/stages/features"
	"cytopipe/internal/stages/images"
	"cytopipe/internal/stages/pulseshapes"
)

func newAllCommand(ctx *commandContext) *cobra.Command {
	var skipUpload bool
	cmd := &cobra.Command{
		Use:   "all <project>",
		Short: "Run the whole pipeline: convert through upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "all", true,
				func(runCtx context.Context, env *runEnv, settings *project.Settings) ([]stage.Stage, error) {
					stages := []stage.Stage{
						convertStage(env),
						extractmeta.New(env.layout, settings.Sample, env.logger),
						extractcyto.New(env.layout, settings.Object, env.logger),
						pulseshapes.New(env.layout, env.cfg.Processing.PulseCoefficients, env.logger),
						images.New(env.layout, env.logger),
						features.New(env.layout, env.cfg.Processing.Workers, env.logger),
						export.New(env.layout, env.logger),
					}
					if skipUpload {
						return stages, nil
					}
					uploadStage, err := buildUploadStage(runCtx, env, settings)
					if err != nil {
						return nil, err
					}
					return append(stages, uploadStage), nil
				})
		},
	}
	cmd.Flags().BoolVar(&skipUpload, "skip-upload", false, "Stop after preparing archives")
	return cmd
}
