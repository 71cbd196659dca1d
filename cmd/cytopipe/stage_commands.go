package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cytopipe/internal/project"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/convert"
	"cytopipe/internal/stages/export"
	"cytopipe/internal/stages/extractcyto"
	"cytopipe/internal/stages/extractmeta"
	"cytopipe/internal/stages/features"
	"cytopipe/internal/stages/images"
	"cytopipe/internal/stages/pulseshapes"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <project>",
		Short: "Convert raw acquisition files to structured documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "convert", true,
				func(_ context.Context, env *runEnv, _ *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{convertStage(env)}, nil
				})
		},
	}
}

func newExtractMetaCommand(ctx *commandContext) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "extract-meta <project>",
		Short: "Extract instrument metadata into per-sample tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return writeListing(cmd, ctx, args[0], extractmeta.WriteFieldListing)
			}
			return runStages(cmd, ctx, args[0], "extract-meta", false,
				func(_ context.Context, env *runEnv, settings *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{extractmeta.New(env.layout, settings.Sample, env.logger)}, nil
				})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Write the available metadata field paths and exit")
	return cmd
}

func newExtractCytoCommand(ctx *commandContext) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "extract-cyto <project>",
		Short: "Extract per-particle cytometric features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return writeListing(cmd, ctx, args[0], extractcyto.WriteFieldListing)
			}
			return runStages(cmd, ctx, args[0], "extract-cyto", false,
				func(_ context.Context, env *runEnv, settings *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{extractcyto.New(env.layout, settings.Object, env.logger)}, nil
				})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Write the available parameter field paths and exit")
	return cmd
}

func newSummarisePulsesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summarise-pulses <project>",
		Short: "Fit polynomial summaries to per-particle pulse shapes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "summarise-pulses", false,
				func(_ context.Context, env *runEnv, _ *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{pulseshapes.New(env.layout, env.cfg.Processing.PulseCoefficients, env.logger)}, nil
				})
		},
	}
}

func newExtractImagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract-images <project>",
		Short: "Decode embedded particle images to PNG files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "extract-images", false,
				func(_ context.Context, env *runEnv, _ *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{images.New(env.layout, env.logger)}, nil
				})
		},
	}
}

func newComputeFeaturesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "compute-features <project>",
		Short: "Measure region properties of extracted particle images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "compute-features", false,
				func(_ context.Context, env *runEnv, _ *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{features.New(env.layout, env.cfg.Processing.Workers, env.logger)}, nil
				})
		},
	}
}

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <project>",
		Short: "Package per-sample tables and images into submission archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "prepare", false,
				func(_ context.Context, env *runEnv, _ *project.Settings) ([]stage.Stage, error) {
					return []stage.Stage{export.New(env.layout, env.logger)}, nil
				})
		},
	}
}

func convertStage(env *runEnv) stage.Stage {
	return convert.New(env.layout, env.converter(), env.logger, env.cfg.ConverterTimeout())
}

// writeListing handles the --list discovery mode shared by extract-meta and
// extract-cyto: reconcile, scan converted documents, write the field file.
func writeListing(cmd *cobra.Command, ctx *commandContext, projectArg string, write func(project.Layout, []string) (string, error)) error {
	env, err := ctx.openRun(projectArg)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := reconcileRegistry(env); err != nil {
		return err
	}
	samples, err := selectedSamples(ctx, env.layout)
	if err != nil {
		return err
	}
	path, err := write(env.layout, samples)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote field listing to %s\n", path)
	return nil
}
