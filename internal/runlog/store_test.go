package runlog_test

import (
	"context"
	"path/filepath"
	"testing"

	"cytopipe/internal/project"
	"cytopipe/internal/runlog"
)

func openStore(t *testing.T) *runlog.Store {
	t.Helper()
	layout, err := project.Create(filepath.Join(t.TempDir(), "proj"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := runlog.Open(layout)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	runID, err := store.BeginRun(ctx, "convert", "force=false sample=all")
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("expected run id")
	}

	if err := store.RecordOutcome(ctx, runID, "a", "convert", "done", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordOutcome(ctx, runID, "b", "convert", "failed", "converter exit 2"); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(ctx, runID, runlog.Counts{Done: 1, Failed: 1}); err != nil {
		t.Fatal(err)
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Command != "convert" || run.Counts.Done != 1 || run.Counts.Failed != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.FinishedAt == nil {
		t.Fatal("expected finish timestamp")
	}

	outcomes, err := store.RunOutcomes(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[1].SampleID != "b" || outcomes[1].Outcome != "failed" || outcomes[1].Detail == "" {
		t.Fatalf("unexpected outcome: %+v", outcomes[1])
	}
}

func TestRecentRunsOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, command := range []string{"convert", "extract-meta", "prepare"} {
		if _, err := store.BeginRun(ctx, command, ""); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("limit not applied: %d", len(runs))
	}
}
