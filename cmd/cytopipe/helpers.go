package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cytopipe/internal/config"
	"cytopipe/internal/logging"
	"cytopipe/internal/pipeline"
	"cytopipe/internal/preflight"
	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/runlog"
	"cytopipe/internal/services"
	"cytopipe/internal/services/cyz2json"
	"cytopipe/internal/stage"
)

// runEnv bundles everything a pipeline-running command needs for one
// project: the exclusive run lock, the per-day log, and the history store.
type runEnv struct {
	cfg     *config.Config
	layout  project.Layout
	logger  *slog.Logger
	history *runlog.Store
	lock    *project.RunLock
	logFile *os.File
}

func openProject(arg string) (project.Layout, error) {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return project.Layout{}, err
	}
	return project.Open(path)
}

// openRun acquires the project lock and wires up logging and run history.
// Callers must Close the returned env.
func (c *commandContext) openRun(projectArg string) (*runEnv, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	layout, err := openProject(projectArg)
	if err != nil {
		return nil, err
	}
	lock, err := project.AcquireRunLock(layout)
	if err != nil {
		return nil, err
	}

	logFile, _, err := logging.OpenDailyLog(layout.Dir(project.AreaLogs), time.Now())
	if err != nil {
		lock.Release()
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Writers: []io.Writer{os.Stderr, logFile},
	})
	if err != nil {
		logFile.Close()
		lock.Release()
		return nil, err
	}

	env := &runEnv{cfg: cfg, layout: layout, logger: logger, lock: lock, logFile: logFile}
	if history, err := runlog.Open(layout); err != nil {
		logger.Warn("run history unavailable", logging.Error(err))
	} else {
		env.history = history
	}
	return env, nil
}

func (e *runEnv) Close() {
	if e.history != nil {
		e.history.Close()
	}
	if e.logFile != nil {
		e.logFile.Close()
	}
	e.lock.Release()
}

func (e *runEnv) converter() cyz2json.Client {
	return cyz2json.NewCLI(cyz2json.WithBinary(e.cfg.Converter.Binary))
}

// reconcileRegistry folds the current raw file set into the registry before
// dispatch, so freshly dropped files participate without a separate list.
func reconcileRegistry(env *runEnv) error {
	rawIDs, err := registry.ScanRaw(env.layout)
	if err != nil {
		return err
	}
	existing, err := registry.Load(env.layout)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return err
	}
	merged, changed := registry.Reconcile(existing, rawIDs, env.cfg.Processing.RegistryFields)
	if !changed {
		return nil
	}
	return registry.Save(env.layout, merged)
}

// stageBuilder assembles the stage sequence for one command once the run
// environment and the project settings are available.
type stageBuilder func(ctx context.Context, env *runEnv, settings *project.Settings) ([]stage.Stage, error)

// runStages is the shared driver behind every stage command: lock the
// project, reconcile the registry, validate mappings, run the orchestrator,
// and render the report. Exit status is non-zero only when a sample Failed
// or setup itself broke.
func runStages(cmd *cobra.Command, c *commandContext, projectArg, command string, checkConvert bool, build stageBuilder) error {
	env, err := c.openRun(projectArg)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if checkConvert {
		checks := preflight.RunConvertChecks(env.layout, env.converter(), env.cfg.Processing.MinFreeSpaceGiB)
		printChecks(out, checks)
		if err := preflight.FirstFailure(checks); err != nil {
			return err
		}
	}

	if err := reconcileRegistry(env); err != nil {
		return err
	}
	settings, err := env.layout.LoadSettings()
	if err != nil {
		return err
	}
	if err := pipeline.ValidateMappings(env.layout, settings); err != nil {
		return err
	}

	stages, err := build(ctx, env, settings)
	if err != nil {
		return err
	}

	report, err := pipeline.Run(ctx,
		pipeline.Env{Layout: env.layout, Logger: env.logger, History: env.history},
		stages,
		pipeline.Options{
			Sample:  c.sample(),
			Force:   c.force(),
			Workers: env.cfg.Processing.Workers,
			Command: command,
		},
	)
	if err != nil {
		return err
	}

	printReport(out, report)
	if report.HasFailures() {
		return fmt.Errorf("%d stage invocation(s) failed", report.Counts().Failed)
	}
	return nil
}

// selectedSamples resolves the --sample filter against the registry.
func selectedSamples(c *commandContext, layout project.Layout) ([]string, error) {
	reg, err := registry.Load(layout)
	if err != nil {
		return nil, err
	}
	if sample := c.sample(); sample != "" {
		if _, ok := reg.Lookup(sample); !ok {
			return nil, fmt.Errorf("%w: sample %q is not in the registry", services.ErrNotFound, sample)
		}
		return []string{sample}, nil
	}
	return reg.SampleIDs(), nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
