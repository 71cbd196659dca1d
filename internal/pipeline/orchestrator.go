package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/runlog"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
)

// Env carries the collaborators every orchestrator invocation needs.
// Nothing here is ambient: commands build one Env per invocation and pass
// it down explicitly.
type Env struct {
	Layout  project.Layout
	Logger  *slog.Logger
	History *runlog.Store // optional; nil disables run history
}

// Options selects the sample set and execution policy for one invocation.
type Options struct {
	// Sample limits processing to one identifier; empty selects all.
	Sample string
	// Force re-executes stages even when their output artifact exists.
	Force bool
	// Workers bounds per-sample parallelism. Values below 2 run
	// sequentially in registry order.
	Workers int
	// Command is the CLI command name recorded in run history.
	Command string
}

func (o Options) describe() string {
	sample := o.Sample
	if sample == "" {
		sample = "all"
	}
	return fmt.Sprintf("sample=%s force=%t workers=%d", sample, o.Force, max(o.Workers, 1))
}

// Run sequences the given stages over the selected samples.
//
// Setup problems (missing registry, unknown sample) return an error before
// any stage executes. Per-sample stage failures never do: they are
// converted to Failed outcomes at this boundary and reported.
func Run(ctx context.Context, env Env, stages []stage.Stage, opts Options) (*Report, error) {
	logger := env.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	reg, err := registry.Load(env.Layout)
	if err != nil {
		return nil, err
	}

	samples := reg.SampleIDs()
	if opts.Sample != "" {
		if _, ok := reg.Lookup(opts.Sample); !ok {
			return nil, fmt.Errorf("%w: sample %q is not in the registry", services.ErrNotFound, opts.Sample)
		}
		samples = []string{opts.Sample}
	}

	report := &Report{}
	if env.History != nil {
		runID, err := env.History.BeginRun(ctx, opts.Command, opts.describe())
		if err != nil {
			logger.Warn("run history unavailable", logging.Error(err))
		} else {
			report.RunID = runID
			ctx = services.WithRunID(ctx, runID)
		}
	}

	start := time.Now()
	logger.Info("pipeline run started",
		logging.Int("stages", len(stages)),
		logging.Int("samples", len(samples)),
		logging.Bool("force", opts.Force),
	)

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			// Cancellation keeps completed artifacts; the run is resumable.
			return report, err
		}
		results := runStage(ctx, env, logger, st, samples, opts)
		report.Results = append(report.Results, results...)
		recordResults(ctx, env, report.RunID, results, logger)
	}

	counts := report.Counts()
	if env.History != nil && report.RunID != "" {
		if err := env.History.FinishRun(ctx, report.RunID, counts); err != nil {
			logger.Warn("failed to finalize run history", logging.Error(err))
		}
	}
	logger.Info("pipeline run finished",
		logging.String("summary", report.Summary()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// runStage invokes one stage over all selected samples, fanning out across
// a bounded worker pool. Results keep registry order regardless of worker
// interleaving.
func runStage(ctx context.Context, env Env, logger *slog.Logger, st stage.Stage, samples []string, opts Options) []Result {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(samples) {
		workers = max(len(samples), 1)
	}

	results := make([]Result, len(samples))
	if workers == 1 {
		for i, sampleID := range samples {
			results[i] = invoke(ctx, env, logger, st, sampleID, opts.Force)
		}
		return results
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = invoke(ctx, env, logger, st, samples[i], opts.Force)
			}
		}()
	}
	for i := range samples {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return results
}

// invoke applies the uniform skip/force and dependency-blocking policy to
// one (sample, stage) pair and converts any stage error into an outcome.
func invoke(ctx context.Context, env Env, logger *slog.Logger, st stage.Stage, sampleID string, force bool) Result {
	stageCtx := services.WithStage(services.WithSampleID(ctx, sampleID), st.Name())
	stageLogger := logging.WithContext(stageCtx, logger)

	if err := ctx.Err(); err != nil {
		return Result{SampleID: sampleID, Stage: st.Name(), Outcome: stage.OutcomeBlocked, Err: err}
	}

	if !force && st.IsDone(sampleID) {
		stageLogger.Debug("stage skipped, artifact exists")
		return Result{SampleID: sampleID, Stage: st.Name(), Outcome: stage.OutcomeSkipped}
	}

	for _, kind := range st.Requires() {
		if !stage.ArtifactPresent(env.Layout, kind, sampleID) {
			stageLogger.Info("stage blocked on missing dependency",
				logging.String("missing_artifact", string(kind)))
			return Result{
				SampleID: sampleID,
				Stage:    st.Name(),
				Outcome:  stage.OutcomeBlocked,
				Err:      fmt.Errorf("required %s artifact missing", kind),
			}
		}
	}

	start := time.Now()
	stageLogger.Info("stage started")
	if err := st.Run(stageCtx, sampleID); err != nil {
		stageLogger.Error("stage failed", logging.Error(err))
		return Result{SampleID: sampleID, Stage: st.Name(), Outcome: stage.OutcomeFailed, Err: err}
	}
	stageLogger.Info("stage completed", logging.Duration("stage_duration", time.Since(start)))
	return Result{SampleID: sampleID, Stage: st.Name(), Outcome: stage.OutcomeDone}
}

func recordResults(ctx context.Context, env Env, runID string, results []Result, logger *slog.Logger) {
	if env.History == nil || runID == "" {
		return
	}
	for _, result := range results {
		detail := ""
		if result.Err != nil {
			detail = result.Err.Error()
		}
		if err := env.History.RecordOutcome(ctx, runID, result.SampleID, result.Stage, string(result.Outcome), detail); err != nil {
			logger.Warn("failed to record outcome", logging.Error(err))
			return
		}
	}
}
