package extractmeta_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"cytopipe/internal/fieldmap"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/services"
	"cytopipe/internal/stages/extractmeta"
	"cytopipe/internal/testsupport"
)

func TestRunWritesMappedColumns(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	testsupport.WriteDocument(t, layout, "a", testsupport.DefaultInstrument(), testsupport.DefaultParticles(t))

	mapping := fieldmap.Mapping{
		"measurementSettings.duration":  "duration",
		"measurementSettings.pumpSpeed": "pump_speed",
		"name":                          "instrument",
	}
	stage := extractmeta.New(layout, mapping, nil)

	if stage.IsDone("a") {
		t.Fatal("should not be done before running")
	}
	if err := stage.Run(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if !stage.IsDone("a") {
		t.Fatal("expected sample metadata artifact")
	}

	records, err := fileutil.ReadCSV(layout.SampleMetadata("a"))
	if err != nil {
		t.Fatal(err)
	}
	wantHeader := []string{"sample_id", "sample_duration", "sample_pump_speed", "sample_instrument"}
	if !reflect.DeepEqual(records[0], wantHeader) {
		t.Fatalf("header: got %v, want %v", records[0], wantHeader)
	}
	wantRow := []string{"a", "120", "2.1", "CytoSense"}
	if !reflect.DeepEqual(records[1], wantRow) {
		t.Fatalf("row: got %v, want %v", records[1], wantRow)
	}
}

func TestRunAbsentFieldIsEmptyCell(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	testsupport.WriteDocument(t, layout, "a", testsupport.DefaultInstrument(), testsupport.DefaultParticles(t))

	mapping := fieldmap.Mapping{"measurementSettings.flowRate": "flow_rate"}
	stage := extractmeta.New(layout, mapping, nil)
	if err := stage.Run(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	records, err := fileutil.ReadCSV(layout.SampleMetadata("a"))
	if err != nil {
		t.Fatal(err)
	}
	if records[1][1] != "" {
		t.Fatalf("expected empty cell, got %q", records[1][1])
	}
}

func TestRunMissingDocumentFails(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")

	stage := extractmeta.New(layout, fieldmap.Mapping{}, nil)
	if err := stage.Run(context.Background(), "a"); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestWriteFieldListing(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	testsupport.WriteDocument(t, layout, "a", testsupport.DefaultInstrument(), testsupport.DefaultParticles(t))

	path, err := extractmeta.WriteFieldListing(layout, []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if path != layout.MetadataFieldListing() {
		t.Fatalf("unexpected listing path %s", path)
	}
	fields, err := extractmeta.ListFields(layout, []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"measurementSettings.duration": true, "name": true}
	for _, field := range fields {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("missing fields %v in %v", want, fields)
	}
}

func TestListFieldsWithoutDocuments(t *testing.T) {
	layout := testsupport.NewProject(t)
	testsupport.AddSample(t, layout, "a")
	if _, err := extractmeta.ListFields(layout, []string{"a"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
