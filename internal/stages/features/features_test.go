package features_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/project"
	"cytopipe/internal/stages/features"
	"cytopipe/internal/testsupport"
)

func extractImages(t *testing.T, layout project.Layout, sampleID string, sizes map[int64]int) {
	t.Helper()
	dir := layout.ImageDir(sampleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for particleID, size := range sizes {
		name := strconv.FormatInt(particleID, 10) + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), testsupport.PNG(t, 24, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunMeasuresEveryImage(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	extractImages(t, layout, "a", map[int64]int{1: 8, 2: 6, 10: 4})

	stage := features.New(layout, 2, nil)
	if err := stage.Run(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if !stage.IsDone("a") {
		t.Fatal("expected image features artifact")
	}

	records, err := fileutil.ReadCSVGz(layout.ImageFeatures("a"))
	if err != nil {
		t.Fatal(err)
	}
	header := records[0]
	if header[0] != "object_id" {
		t.Fatalf("first column %q", header[0])
	}
	for _, column := range header[1:] {
		if len(column) < 4 || column[:4] != "img_" {
			t.Fatalf("feature column %q not img_-prefixed", column)
		}
	}
	if len(records) != 4 {
		t.Fatalf("expected 3 rows, got %d", len(records)-1)
	}
	// Numeric particle order, not lexicographic.
	wantOrder := []string{"a_1", "a_2", "a_10"}
	for i, want := range wantOrder {
		if records[i+1][0] != want {
			t.Fatalf("row %d: got %s, want %s", i, records[i+1][0], want)
		}
	}

	areaIdx := indexOf(header, "img_area")
	if areaIdx < 0 {
		t.Fatalf("no img_area column in %v", header)
	}
	area, err := strconv.ParseFloat(records[1][areaIdx], 64)
	if err != nil || area != 64 {
		t.Fatalf("8x8 particle area: got %v (err %v)", records[1][areaIdx], err)
	}
}

func TestRunEmptyImageDirFails(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	if err := os.MkdirAll(layout.ImageDir("a"), 0o755); err != nil {
		t.Fatal(err)
	}

	stage := features.New(layout, 1, nil)
	if err := stage.Run(context.Background(), "a"); err == nil {
		t.Fatal("expected error for empty image dir")
	}
}

func TestRunIgnoresForeignFiles(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	extractImages(t, layout, "a", map[int64]int{1: 8})
	if err := os.WriteFile(filepath.Join(layout.ImageDir("a"), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	stage := features.New(layout, 1, nil)
	if err := stage.Run(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	records, err := fileutil.ReadCSVGz(layout.ImageFeatures("a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 1 row, got %d", len(records)-1)
	}
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}
