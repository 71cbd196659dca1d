package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/services/ecotaxa"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/upload"
)

const (
	envUsername = "ECOTAXA_USERNAME"
	envPassword = "ECOTAXA_PASSWORD"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <project>",
		Short: "Submit prepared archives to the annotation repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, args[0], "upload", false,
				func(runCtx context.Context, env *runEnv, settings *project.Settings) ([]stage.Stage, error) {
					uploadStage, err := buildUploadStage(runCtx, env, settings)
					if err != nil {
						return nil, err
					}
					return []stage.Stage{uploadStage}, nil
				})
		},
	}
}

// buildUploadStage authenticates against the repository up front; a bad
// credential fails the whole invocation instead of every sample.
func buildUploadStage(ctx context.Context, env *runEnv, settings *project.Settings) (stage.Stage, error) {
	username := os.Getenv(envUsername)
	password := os.Getenv(envPassword)
	if username == "" || password == "" {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "login",
			fmt.Sprintf("set %s and %s in the environment", envUsername, envPassword), nil)
	}

	client := ecotaxa.NewClient(ecotaxa.Config{
		BaseURL:               env.cfg.Upload.BaseURL,
		RequestTimeoutSeconds: env.cfg.Upload.RequestTimeoutSeconds,
		UploadTimeoutSeconds:  env.cfg.Upload.UploadTimeoutSeconds,
		RetryMaxAttempts:      env.cfg.Upload.RetryMaxAttempts,
		RetryBaseDelaySeconds: env.cfg.Upload.RetryBaseDelaySeconds,
		RetryMaxDelaySeconds:  env.cfg.Upload.RetryMaxDelaySeconds,
		JobPollSeconds:        env.cfg.Upload.JobPollSeconds,
	})
	if err := client.Login(ctx, username, password); err != nil {
		return nil, err
	}
	return upload.New(env.layout, client, settings.EcoTaxa.ProjectID, env.logger), nil
}
