// Package cleanup reclaims disk space from samples that made it all the way
// to an export archive.
//
// Intermediate artifacts (converted document, work tables, images) of an
// exported sample can be regenerated from the raw file, so they are safe to
// delete. Raw files, the registry, archives, and receipts are never
// touched.
package cleanup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
)

// ErrExportMissing guards against deleting intermediates of a sample whose
// archive was never built; nothing is removed for such a sample.
var ErrExportMissing = errors.New("export archive missing")

// Result is the cleanup outcome of one sample.
type Result struct {
	SampleID string
	Removed  int
	Err      error
}

// Run removes the regenerable intermediates of each selected sample. A
// sample without an export archive is reported with ErrExportMissing and
// left fully intact.
func Run(layout project.Layout, sampleIDs []string, logger *slog.Logger) []Result {
	if logger == nil {
		logger = logging.NewNop()
	}
	results := make([]Result, 0, len(sampleIDs))
	for _, sampleID := range sampleIDs {
		result := Result{SampleID: sampleID}
		if !fileutil.FileExists(layout.ExportArchive(sampleID)) {
			result.Err = fmt.Errorf("%w: sample %s", ErrExportMissing, sampleID)
			results = append(results, result)
			continue
		}
		result.Removed, result.Err = removeIntermediates(layout, sampleID)
		if result.Err == nil {
			logger.Info("intermediates removed",
				logging.String("sample_id", sampleID), logging.Int("artifacts", result.Removed))
		}
		results = append(results, result)
	}
	return results
}

func removeIntermediates(layout project.Layout, sampleID string) (int, error) {
	removed := 0
	files := []string{
		layout.ConvertedDocument(sampleID),
		layout.SampleMetadata(sampleID),
		layout.CytoFeatures(sampleID),
		layout.PulseSummary(sampleID),
		layout.ImageFeatures(sampleID),
	}
	for _, path := range files {
		if !fileutil.FileExists(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}

	imageDir := layout.ImageDir(sampleID)
	if info, err := os.Stat(imageDir); err == nil && info.IsDir() {
		if err := os.RemoveAll(imageDir); err != nil {
			return removed, fmt.Errorf("remove %s: %w", imageDir, err)
		}
		removed++
	}
	return removed, nil
}
