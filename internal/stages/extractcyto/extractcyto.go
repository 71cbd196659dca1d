// Package extractcyto extracts mapped per-particle cytometric features
// into a gzip CSV per sample.
package extractcyto

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"cytopipe/internal/document"
	"cytopipe/internal/fieldmap"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
)

// Stage extracts the mapped particle parameters of one sample.
type Stage struct {
	layout  project.Layout
	mapping fieldmap.Mapping
	logger  *slog.Logger
}

// New builds the extract-cyto stage from the project's object mapping.
func New(layout project.Layout, mapping fieldmap.Mapping, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{layout: layout, mapping: mapping, logger: logger}
}

func (s *Stage) Name() string { return "extract-cyto" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactDocument}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactCytoFeatures }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.CytoFeatures(sampleID))
}

// ObjectID joins sample and particle into the identifier every tabular
// artifact is keyed by.
func ObjectID(sampleID string, particleID int64) string {
	return sampleID + "_" + strconv.FormatInt(particleID, 10)
}

// Run streams the particles section once, resolving each mapped parameter
// path into an object_<target> column.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	paths := make([]string, 0, len(s.mapping))
	header := []string{"object_id"}
	for _, path := range s.mapping.SortedPaths() {
		target, ok := s.mapping.Resolve(path)
		if !ok {
			continue
		}
		paths = append(paths, path)
		header = append(header, "object_"+target)
	}

	var rows [][]string
	err := document.EachParticle(s.layout.ConvertedDocument(sampleID), func(p document.Particle) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := make([]string, 0, len(header))
		row = append(row, ObjectID(sampleID, p.ParticleID))
		for _, path := range paths {
			value, ok := p.ParameterValue(path)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(value, 'g', -1, 64))
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, s.Name(), "read particles",
			fmt.Sprintf("sample %s", sampleID), err)
	}
	if len(rows) == 0 {
		return services.Wrap(services.ErrValidation, s.Name(), "read particles",
			fmt.Sprintf("sample %s has no particles", sampleID), nil)
	}

	if err := fileutil.WriteCSVGz(s.layout.CytoFeatures(sampleID), header, rows); err != nil {
		return fmt.Errorf("write cytometric features: %w", err)
	}
	s.logger.Debug("cytometric features written",
		logging.String("sample_id", sampleID), logging.Int("particles", len(rows)))
	return nil
}

// ListFields gathers the addressable parameter paths across the converted
// documents of the given samples, sorted and deduplicated. Only the first
// particle of each document is inspected since every particle of an
// acquisition shares one parameter shape.
func ListFields(layout project.Layout, sampleIDs []string) ([]string, error) {
	var paths []string
	scanned := 0
	for _, sampleID := range sampleIDs {
		docPath := layout.ConvertedDocument(sampleID)
		if !fileutil.FileExists(docPath) {
			continue
		}
		particle, found, err := document.FirstParticle(docPath)
		if err != nil {
			return nil, fmt.Errorf("discover parameters in %s: %w", sampleID, err)
		}
		if found {
			paths = append(paths, particle.ParameterPaths()...)
		}
		scanned++
	}
	if scanned == 0 {
		return nil, fmt.Errorf("%w: no converted documents to discover fields from", services.ErrNotFound)
	}
	return fieldmap.Dedupe(paths), nil
}

// WriteFieldListing writes the parameter paths to the config area so users
// can copy them into the object mapping.
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
	target := layout.CytometricFieldListing()
	if err := fileutil.WriteFileAtomic(target, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write field listing: %w", err)
	}
	return target, nil
}

var _ stage.Stage = (*Stage)(nil)
