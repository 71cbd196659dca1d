package cleanup_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cytopipe/internal/cleanup"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/project"
	"cytopipe/internal/testsupport"
)

func populateIntermediates(t *testing.T, layout project.Layout, sampleID string) {
	t.Helper()
	files := []string{
		layout.ConvertedDocument(sampleID),
		layout.SampleMetadata(sampleID),
		layout.CytoFeatures(sampleID),
		layout.PulseSummary(sampleID),
		layout.ImageFeatures(sampleID),
	}
	for _, path := range files {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(layout.ImageDir(sampleID), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(layout.ImageDir(sampleID), "1.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunRemovesIntermediatesOfExportedSample(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	populateIntermediates(t, layout, "a")
	if err := os.WriteFile(layout.ExportArchive("a"), []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	results := cleanup.Run(layout, []string{"a"}, nil)
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Removed != 6 {
		t.Fatalf("removed %d artifacts, want 6", results[0].Removed)
	}

	if fileutil.FileExists(layout.ConvertedDocument("a")) {
		t.Fatal("converted document should be gone")
	}
	if fileutil.DirNonEmpty(layout.ImageDir("a")) {
		t.Fatal("image dir should be gone")
	}
	// Raw file, archive, and registry survive.
	if !fileutil.FileExists(layout.RawFile("a")) {
		t.Fatal("raw file must survive cleanup")
	}
	if !fileutil.FileExists(layout.ExportArchive("a")) {
		t.Fatal("archive must survive cleanup")
	}
	if !fileutil.FileExists(layout.RegistryFile()) {
		t.Fatal("registry must survive cleanup")
	}
}

func TestRunGuardsUnexportedSample(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	populateIntermediates(t, layout, "a")

	results := cleanup.Run(layout, []string{"a"}, nil)
	if len(results) != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !errors.Is(results[0].Err, cleanup.ErrExportMissing) {
		t.Fatalf("expected ErrExportMissing, got %v", results[0].Err)
	}
	if results[0].Removed != 0 {
		t.Fatal("nothing may be removed for an unexported sample")
	}
	if !fileutil.FileExists(layout.ConvertedDocument("a")) {
		t.Fatal("intermediates must be intact")
	}
}

func TestRunMixedSamples(t *testing.T) {
	layout := testsupport.NewProject(t)
	for _, id := range []string{"a", "b"} {
		testsupport.AddSample(t, layout, id)
		populateIntermediates(t, layout, id)
	}
	if err := os.WriteFile(layout.ExportArchive("a"), []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	results := cleanup.Run(layout, []string{"a", "b"}, nil)
	if results[0].Err != nil || results[1].Err == nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	if fileutil.FileExists(layout.ConvertedDocument("a")) {
		t.Fatal("exported sample should be cleaned")
	}
	if !fileutil.FileExists(layout.ConvertedDocument("b")) {
		t.Fatal("unexported sample must be intact")
	}
}
