package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/pipeline"
	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/runlog"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
)

// fakeStage writes a real artifact file so the orchestrator's
// artifact-existence checks observe the same state concrete stages produce.
type fakeStage struct {
	name     string
	requires []stage.ArtifactKind
	output   stage.ArtifactKind
	path     func(sampleID string) string
	fail     map[string]error

	mu  sync.Mutex
	ran []string
}

func (s *fakeStage) Name() string                   { return s.name }
func (s *fakeStage) Requires() []stage.ArtifactKind { return s.requires }
func (s *fakeStage) Output() stage.ArtifactKind     { return s.output }

func (s *fakeStage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.path(sampleID))
}

func (s *fakeStage) Run(_ context.Context, sampleID string) error {
	s.mu.Lock()
	s.ran = append(s.ran, sampleID)
	s.mu.Unlock()
	if err := s.fail[sampleID]; err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(s.path(sampleID), []byte("artifact"), 0o644)
}

func (s *fakeStage) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ran)
}

func newProject(t *testing.T, sampleIDs ...string) project.Layout {
	t.Helper()
	layout, err := project.Create(filepath.Join(t.TempDir(), "proj"))
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range sampleIDs {
		if err := os.WriteFile(layout.RawFile(id), []byte("cyz"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reg, _ := registry.Reconcile(nil, sampleIDs, nil)
	if err := registry.Save(layout, reg); err != nil {
		t.Fatal(err)
	}
	return layout
}

func convertStage(layout project.Layout) *fakeStage {
	return &fakeStage{
		name:     "convert",
		requires: []stage.ArtifactKind{stage.ArtifactRaw},
		output:   stage.ArtifactDocument,
		path:     layout.ConvertedDocument,
		fail:     map[string]error{},
	}
}

func metaStage(layout project.Layout) *fakeStage {
	return &fakeStage{
		name:     "extract-meta",
		requires: []stage.ArtifactKind{stage.ArtifactDocument},
		output:   stage.ArtifactSampleMeta,
		path:     layout.SampleMetadata,
		fail:     map[string]error{},
	}
}

func env(layout project.Layout) pipeline.Env {
	return pipeline.Env{Layout: layout, Logger: logging.NewNop()}
}

func mustOutcome(t *testing.T, report *pipeline.Report, sampleID, stageName string, want stage.Outcome) {
	t.Helper()
	got, ok := report.Outcome(sampleID, stageName)
	if !ok {
		t.Fatalf("no outcome recorded for %s/%s", sampleID, stageName)
	}
	if got != want {
		t.Fatalf("%s/%s: got %s, want %s", sampleID, stageName, got, want)
	}
}

func TestRunSkipsExistingArtifacts(t *testing.T) {
	layout := newProject(t, "a", "b")
	convert := convertStage(layout)

	// a is already converted from an earlier invocation.
	if err := os.WriteFile(layout.ConvertedDocument("a"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := pipeline.Run(context.Background(), env(layout), []stage.Stage{convert}, pipeline.Options{})
	if err != nil {
		t.Fatal(err)
	}
	mustOutcome(t, report, "a", "convert", stage.OutcomeSkipped)
	mustOutcome(t, report, "b", "convert", stage.OutcomeDone)
	if convert.runCount() != 1 {
		t.Fatalf("expected 1 execution, got %d", convert.runCount())
	}
	if report.HasFailures() {
		t.Fatal("no failures expected")
	}
}

func TestRunForceReexecutes(t *testing.T) {
	layout := newProject(t, "a", "b")
	convert := convertStage(layout)
	if err := os.WriteFile(layout.ConvertedDocument("a"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := pipeline.Run(context.Background(), env(layout), []stage.Stage{convert}, pipeline.Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	mustOutcome(t, report, "a", "convert", stage.OutcomeDone)
	mustOutcome(t, report, "b", "convert", stage.OutcomeDone)
	if convert.runCount() != 2 {
		t.Fatalf("expected 2 executions, got %d", convert.runCount())
	}
}

func TestRunFailureIsolatesAndBlocksDownstream(t *testing.T) {
	layout := newProject(t, "a", "b")
	convert := convertStage(layout)
	convert.fail["b"] = errors.New("unreadable acquisition file")
	meta := metaStage(layout)

	report, err := pipeline.Run(context.Background(), env(layout),
		[]stage.Stage{convert, meta}, pipeline.Options{})
	if err != nil {
		t.Fatal(err)
	}

	mustOutcome(t, report, "a", "convert", stage.OutcomeDone)
	mustOutcome(t, report, "b", "convert", stage.OutcomeFailed)
	mustOutcome(t, report, "a", "extract-meta", stage.OutcomeDone)
	mustOutcome(t, report, "b", "extract-meta", stage.OutcomeBlocked)

	if !report.HasFailures() {
		t.Fatal("expected failures")
	}
	counts := report.Counts()
	if counts.Done != 2 || counts.Failed != 1 || counts.Blocked != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestRunRecoversAfterRepair(t *testing.T) {
	layout := newProject(t, "a", "b")
	convert := convertStage(layout)
	convert.fail["b"] = errors.New("unreadable acquisition file")

	if _, err := pipeline.Run(context.Background(), env(layout), []stage.Stage{convert}, pipeline.Options{}); err != nil {
		t.Fatal(err)
	}

	// Repair the input and rerun: a is skipped, only b executes.
	delete(convert.fail, "b")
	report, err := pipeline.Run(context.Background(), env(layout), []stage.Stage{convert}, pipeline.Options{})
	if err != nil {
		t.Fatal(err)
	}
	mustOutcome(t, report, "a", "convert", stage.OutcomeSkipped)
	mustOutcome(t, report, "b", "convert", stage.OutcomeDone)
}

func TestRunSampleFilter(t *testing.T) {
	layout := newProject(t, "a", "b")
	convert := convertStage(layout)

	report, err := pipeline.Run(context.Background(), env(layout),
		[]stage.Stage{convert}, pipeline.Options{Sample: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 || report.Results[0].SampleID != "b" {
		t.Fatalf("unexpected results: %+v", report.Results)
	}
}

func TestRunUnknownSampleIsFatal(t *testing.T) {
	layout := newProject(t, "a")
	convert := convertStage(layout)

	_, err := pipeline.Run(context.Background(), env(layout),
		[]stage.Stage{convert}, pipeline.Options{Sample: "nope"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if convert.runCount() != 0 {
		t.Fatal("no stage should have executed")
	}
}

func TestRunMissingRegistryIsFatal(t *testing.T) {
	layout, err := project.Create(filepath.Join(t.TempDir(), "proj"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = pipeline.Run(context.Background(), env(layout),
		[]stage.Stage{convertStage(layout)}, pipeline.Options{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunWorkersKeepResultOrder(t *testing.T) {
	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		ids = append(ids, fmt.Sprintf("s%02d", i))
	}
	layout := newProject(t, ids...)
	convert := convertStage(layout)

	report, err := pipeline.Run(context.Background(), env(layout),
		[]stage.Stage{convert}, pipeline.Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != len(ids) {
		t.Fatalf("expected %d results, got %d", len(ids), len(report.Results))
	}
	for i, result := range report.Results {
		if result.SampleID != ids[i] {
			t.Fatalf("result %d out of order: got %s, want %s", i, result.SampleID, ids[i])
		}
		if result.Outcome != stage.OutcomeDone {
			t.Fatalf("sample %s: %s", result.SampleID, result.Outcome)
		}
	}
}

func TestRunRecordsHistory(t *testing.T) {
	layout := newProject(t, "a", "b")
	store, err := runlog.Open(layout)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	convert := convertStage(layout)
	convert.fail["b"] = errors.New("boom")
	runEnv := env(layout)
	runEnv.History = store

	report, err := pipeline.Run(context.Background(), runEnv,
		[]stage.Stage{convert}, pipeline.Options{Command: "convert"})
	if err != nil {
		t.Fatal(err)
	}
	if report.RunID == "" {
		t.Fatal("expected run id")
	}

	outcomes, err := store.RunOutcomes(context.Background(), report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	runs, err := store.RecentRuns(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Counts.Done != 1 || runs[0].Counts.Failed != 1 {
		t.Fatalf("unexpected run record: %+v", runs)
	}
}
