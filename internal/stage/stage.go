// Package stage defines the contract every pipeline transformation
// implements and the artifact vocabulary stages use to declare data
// dependencies on one another.
//
// A stage is a pure function of (sample, predecessor artifacts, config):
// it never inspects another stage's internal state, only declared output
// artifacts. Artifact existence doubles as the completion marker, so
// writers must go through the fileutil atomic helpers.
package stage

import (
	"context"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/project"
)

// ArtifactKind names one category of per-sample artifact.
type ArtifactKind string

const (
	ArtifactRaw           ArtifactKind = "raw"
	ArtifactDocument      ArtifactKind = "document"
	ArtifactSampleMeta    ArtifactKind = "sample_metadata"
	ArtifactCytoFeatures  ArtifactKind = "cytometric_features"
	ArtifactPulseSummary  ArtifactKind = "pulse_summary"
	ArtifactImages        ArtifactKind = "images"
	ArtifactImageFeatures ArtifactKind = "image_features"
	ArtifactExport        ArtifactKind = "export_archive"
	ArtifactUploadReceipt ArtifactKind = "upload_receipt"
)

// Stage is one named, idempotent transformation step.
type Stage interface {
	// Name is the stable stage identifier used in reports and logs.
	Name() string
	// Requires lists the artifact kinds that must exist for a sample
	// before the stage may run.
	Requires() []ArtifactKind
	// Output is the artifact kind the stage produces.
	Output() ArtifactKind
	// IsDone reports whether the output artifact already exists for the
	// sample. It is the sole completion ledger.
	IsDone(sampleID string) bool
	// Run executes the transformation for one sample, overwriting any
	// existing output.
	Run(ctx context.Context, sampleID string) error
}

// ArtifactPresent reports whether an artifact of the given kind exists for
// a sample. It is how the orchestrator decides dependency blocking without
// needing the producing stage in hand.
func ArtifactPresent(layout project.Layout, kind ArtifactKind, sampleID string) bool {
	switch kind {
	case ArtifactRaw:
		return fileutil.FileExists(layout.RawFile(sampleID))
	case ArtifactDocument:
		return fileutil.FileExists(layout.ConvertedDocument(sampleID))
	case ArtifactSampleMeta:
		return fileutil.FileExists(layout.SampleMetadata(sampleID))
	case ArtifactCytoFeatures:
		return fileutil.FileExists(layout.CytoFeatures(sampleID))
	case ArtifactPulseSummary:
		return fileutil.FileExists(layout.PulseSummary(sampleID))
	case ArtifactImages:
		return fileutil.DirNonEmpty(layout.ImageDir(sampleID))
	case ArtifactImageFeatures:
		return fileutil.FileExists(layout.ImageFeatures(sampleID))
	case ArtifactExport:
		return fileutil.FileExists(layout.ExportArchive(sampleID))
	case ArtifactUploadReceipt:
		return fileutil.FileExists(layout.UploadReceipt(sampleID))
	default:
		return false
	}
}
