package registry_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/services"
)

func newProject(t *testing.T) project.Layout {
	t.Helper()
	layout, err := project.Create(filepath.Join(t.TempDir(), "proj"))
	if err != nil {
		t.Fatal(err)
	}
	return layout
}

func addRaw(t *testing.T, layout project.Layout, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := os.WriteFile(layout.RawFile(id), []byte("cyz"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanRawSortedStems(t *testing.T) {
	layout := newProject(t)
	addRaw(t, layout, "b_sample", "a_sample")
	if err := os.WriteFile(filepath.Join(layout.Dir(project.AreaRaw), "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := registry.ScanRaw(layout)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "a_sample" || ids[1] != "b_sample" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestLoadMissingRegistry(t *testing.T) {
	layout := newProject(t)
	_, err := registry.Load(layout)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconcileFreshRegistry(t *testing.T) {
	reg, changed := registry.Reconcile(nil, []string{"a", "b"}, []string{"object_lat"})
	if !changed {
		t.Fatal("expected change for fresh registry")
	}
	if len(reg.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(reg.Rows))
	}
	if got := reg.SampleIDs(); got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
	if !strings.Contains(strings.Join(reg.Columns, ","), "object_lat") {
		t.Fatalf("extra field missing from columns: %v", reg.Columns)
	}
	row, _ := reg.Lookup("a")
	if row.Values["object_lat"] != "" {
		t.Fatal("new rows must start with empty metadata")
	}
}

func TestReconcilePreservesUserEditsAndColumns(t *testing.T) {
	reg, _ := registry.Reconcile(nil, []string{"a"}, nil)
	row, _ := reg.Lookup("a")
	row.Values["object_lat"] = "54.32"
	row.Values["cruise"] = "HE601"
	reg.Columns = append(reg.Columns, "object_lat", "cruise")

	merged, changed := registry.Reconcile(reg, []string{"a", "b"}, []string{"object_lat"})
	if !changed {
		t.Fatal("expected change when appending a sample")
	}
	if len(merged.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(merged.Rows))
	}

	kept, _ := merged.Lookup("a")
	if kept.Values["object_lat"] != "54.32" || kept.Values["cruise"] != "HE601" {
		t.Fatalf("user edits lost: %v", kept.Values)
	}
	if !strings.Contains(strings.Join(merged.Columns, ","), "cruise") {
		t.Fatalf("user column lost: %v", merged.Columns)
	}
}

func TestReconcileFlagsMissingRowsWithoutDeleting(t *testing.T) {
	reg, _ := registry.Reconcile(nil, []string{"a", "b"}, nil)

	merged, changed := registry.Reconcile(reg, []string{"b"}, nil)
	if !changed {
		t.Fatal("expected change when a raw file disappears")
	}
	if len(merged.Rows) != 2 {
		t.Fatalf("rows must never be deleted, got %d", len(merged.Rows))
	}
	gone, _ := merged.Lookup("a")
	if !gone.Missing() {
		t.Fatal("row without raw file must be flagged missing")
	}
	still, _ := merged.Lookup("b")
	if still.Missing() {
		t.Fatal("row with raw file must not be flagged")
	}

	// Raw file returns: the flag clears.
	restored, changed := registry.Reconcile(merged, []string{"a", "b"}, nil)
	if !changed {
		t.Fatal("expected change when flag clears")
	}
	back, _ := restored.Lookup("a")
	if back.Missing() {
		t.Fatal("restored raw file must clear the missing flag")
	}
}

func TestReconcileNoChangesSkipsRewrite(t *testing.T) {
	reg, _ := registry.Reconcile(nil, []string{"a"}, []string{"f1"})
	_, changed := registry.Reconcile(reg, []string{"a"}, []string{"f1"})
	if changed {
		t.Fatal("identical reconcile must report no change")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	layout := newProject(t)
	reg, _ := registry.Reconcile(nil, []string{"north_sea-d10"}, []string{"object_lat"})
	row, _ := reg.Lookup("north_sea-d10")
	row.Values["object_lat"] = "54.1"

	if err := registry.Save(layout, reg); err != nil {
		t.Fatal(err)
	}

	loaded, err := registry.Load(layout)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := loaded.Lookup("north_sea-d10")
	if !ok {
		t.Fatal("row lost in round trip")
	}
	if got.Values["object_lat"] != "54.1" {
		t.Fatalf("cell lost in round trip: %v", got.Values)
	}
	if got.Values[registry.ColumnTitle] == "" {
		t.Fatal("expected derived title")
	}
}
