// Package extractmeta pulls mapped instrument metadata out of converted
// documents, one CSV per sample.
package extractmeta

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"

	"cytopipe/internal/document"
	"cytopipe/internal/fieldmap"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
)

// Stage extracts the mapped instrument fields of one sample.
type Stage struct {
	layout  project.Layout
	mapping fieldmap.Mapping
	logger  *slog.Logger
}

// New builds the extract-meta stage from the project's sample mapping.
func New(layout project.Layout, mapping fieldmap.Mapping, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{layout: layout, mapping: mapping, logger: logger}
}

func (s *Stage) Name() string { return "extract-meta" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactDocument}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactSampleMeta }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.SampleMetadata(sampleID))
}

// Run writes a one-row CSV with a sample_<target> column per mapped field.
// Mapped fields absent from this particular document produce empty cells;
// only keys unknown to every document are a configuration error, caught
// before any stage runs.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, err := document.Instrument(s.layout.ConvertedDocument(sampleID))
	if err != nil {
		return services.Wrap(services.ErrValidation, s.Name(), "read instrument metadata",
			fmt.Sprintf("sample %s", sampleID), err)
	}

	header := []string{"sample_id"}
	row := []string{sampleID}
	for _, path := range s.mapping.SortedPaths() {
		target, ok := s.mapping.Resolve(path)
		if !ok {
			continue
		}
		header = append(header, "sample_"+target)
		value, found := fieldmap.ValueAt(tree, path)
		if !found {
			s.logger.Debug("metadata field absent from document",
				logging.String("sample_id", sampleID), logging.String("path", path))
			row = append(row, "")
			continue
		}
		row = append(row, fieldmap.FormatValue(value))
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("encode metadata header: %w", err)
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("encode metadata row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.layout.SampleMetadata(sampleID), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write sample metadata: %w", err)
	}
	return nil
}

// ListFields gathers every discoverable instrument field path across the
// converted documents of the given samples, sorted and deduplicated.
func ListFields(layout project.Layout, sampleIDs []string) ([]string, error) {
	var paths []string
	scanned := 0
	for _, sampleID := range sampleIDs {
		docPath := layout.ConvertedDocument(sampleID)
		if !fileutil.FileExists(docPath) {
			continue
		}
		tree, err := document.Instrument(docPath)
		if err != nil {
			return nil, fmt.Errorf("discover fields in %s: %w", sampleID, err)
		}
		paths = append(paths, fieldmap.Discover(tree)...)
		scanned++
	}
	if scanned == 0 {
		return nil, fmt.Errorf("%w: no converted documents to discover fields from", services.ErrNotFound)
	}
	return fieldmap.Dedupe(paths), nil
}

// WriteFieldListing writes the discoverable paths to the config area so
// users can copy them into the sample mapping.
func WriteFieldListing(layout project.Layout, sampleIDs []string) (string, error) {
	paths, err := ListFields(layout, sampleIDs)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, path := range paths {
		buf.WriteString(path)
		buf.WriteByte('\n')
	}
	target := layout.MetadataFieldListing()
	if err := fileutil.WriteFileAtomic(target, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write field listing: %w", err)
	}
	return target, nil
}

var _ stage.Stage = (*Stage)(nil)
