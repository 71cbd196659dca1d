package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Area names one subarea of the project tree. Data flows strictly forward:
// no stage reads another stage's area other than its declared predecessors.
type Area string

const (
	AreaRaw       Area = "raw"       // raw .cyz acquisition files (user-provided)
	AreaConverted Area = "converted" // structured .json documents from the converter
	AreaMeta      Area = "meta"      // sample registry and user metadata
	AreaWork      Area = "work"      // per-stage work products
	AreaImages    Area = "images"    // per-sample image subdirectories
	AreaExport    Area = "export"    // submission archives
	AreaConfig    Area = "config"    // per-project config.yaml and field listings
	AreaLogs      Area = "logs"      // per-day run logs and run history
)

// Areas lists every subarea in creation order.
func Areas() []Area {
	return []Area{AreaRaw, AreaConverted, AreaMeta, AreaWork, AreaImages, AreaExport, AreaConfig, AreaLogs}
}

// ErrAlreadyExists is returned by Create when the root exists but is not a
// cytopipe project and is not empty, so merging into it would be ambiguous.
var ErrAlreadyExists = errors.New("directory exists and is not a cytopipe project")

// ErrNotAProject is returned by Open when the root lacks the project layout.
var ErrNotAProject = errors.New("not a cytopipe project")

// Layout resolves canonical paths inside one project tree.
type Layout struct {
	root string
}

// NewLayout wraps an existing project root without touching the filesystem.
func NewLayout(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root returns the project root path.
func (l Layout) Root() string { return l.root }

// Dir returns the canonical path of an area. No side effects.
func (l Layout) Dir(area Area) string {
	return filepath.Join(l.root, string(area))
}

// RawFile returns the raw acquisition file path for a sample.
func (l Layout) RawFile(sampleID string) string {
	return filepath.Join(l.Dir(AreaRaw), sampleID+".cyz")
}

// ConvertedDocument returns the converted structured document path.
func (l Layout) ConvertedDocument(sampleID string) string {
	return filepath.Join(l.Dir(AreaConverted), sampleID+".json")
}

// RegistryFile returns the sample registry path.
func (l Layout) RegistryFile() string {
	return filepath.Join(l.Dir(AreaMeta), "samples.csv")
}

// SampleMetadata returns the per-sample instrument metadata artifact path.
func (l Layout) SampleMetadata(sampleID string) string {
	return filepath.Join(l.Dir(AreaWork), sampleID+"_sample_meta.csv")
}

// CytoFeatures returns the per-sample cytometric features artifact path.
func (l Layout) CytoFeatures(sampleID string) string {
	return filepath.Join(l.Dir(AreaWork), sampleID+"_cyto.csv.gz")
}

// PulseSummary returns the per-sample pulse-shape summary artifact path.
func (l Layout) PulseSummary(sampleID string) string {
	return filepath.Join(l.Dir(AreaWork), sampleID+"_pulses.csv.gz")
}

// ImageDir returns the per-sample image directory.
func (l Layout) ImageDir(sampleID string) string {
	return filepath.Join(l.Dir(AreaImages), sampleID)
}

// ImageFeatures returns the per-sample image feature artifact path.
func (l Layout) ImageFeatures(sampleID string) string {
	return filepath.Join(l.Dir(AreaWork), sampleID+"_image_features.csv.gz")
}

// ExportArchive returns the per-sample submission archive path.
func (l Layout) ExportArchive(sampleID string) string {
	return filepath.Join(l.Dir(AreaExport), "ecotaxa_"+sampleID+".zip")
}

// UploadReceipt returns the marker recording a completed upload.
func (l Layout) UploadReceipt(sampleID string) string {
	return filepath.Join(l.Dir(AreaExport), "ecotaxa_"+sampleID+".uploaded")
}

// ConfigFile returns the per-project configuration path.
func (l Layout) ConfigFile() string {
	return filepath.Join(l.Dir(AreaConfig), "config.yaml")
}

// MetadataFieldListing returns the discover artifact written by
// extract-meta --list.
func (l Layout) MetadataFieldListing() string {
	return filepath.Join(l.Dir(AreaConfig), "available_metadata_fields.txt")
}

// CytometricFieldListing returns the discover artifact written by
// extract-cyto --list.
func (l Layout) CytometricFieldListing() string {
	return filepath.Join(l.Dir(AreaConfig), "available_cytometric_fields.txt")
}

// Create establishes the project layout under root. Re-creating an existing
// project is a no-op merge; a non-empty foreign directory is rejected.
func Create(root string) (Layout, error) {
	layout := NewLayout(root)

	info, err := os.Stat(layout.root)
	switch {
	case err == nil:
		if !info.IsDir() {
			return Layout{}, fmt.Errorf("%w: %s is a file", ErrAlreadyExists, layout.root)
		}
		if !layout.recognized() {
			empty, emptyErr := dirEmpty(layout.root)
			if emptyErr != nil {
				return Layout{}, emptyErr
			}
			if !empty {
				return Layout{}, fmt.Errorf("%w: %s", ErrAlreadyExists, layout.root)
			}
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(layout.root, 0o755); err != nil {
			return Layout{}, fmt.Errorf("create project root: %w", err)
		}
	default:
		return Layout{}, fmt.Errorf("stat project root: %w", err)
	}

	for _, area := range Areas() {
		if err := os.MkdirAll(layout.Dir(area), 0o755); err != nil {
			return Layout{}, fmt.Errorf("create %s area: %w", area, err)
		}
	}

	if err := writeDefaultConfig(layout); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Open wraps an existing project, verifying the layout is present.
func Open(root string) (Layout, error) {
	layout := NewLayout(root)
	info, err := os.Stat(layout.root)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %s", ErrNotAProject, root)
	}
	if !info.IsDir() || !layout.recognized() {
		return Layout{}, fmt.Errorf("%w: %s", ErrNotAProject, root)
	}
	return layout, nil
}

// recognized reports whether the root carries at least the raw and meta
// areas, the minimal signature of a cytopipe project.
func (l Layout) recognized() bool {
	for _, area := range []Area{AreaRaw, AreaMeta} {
		info, err := os.Stat(l.Dir(area))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("read directory: %w", err)
	}
	return len(entries) == 0, nil
}
