// Package features measures extracted particle images, one gzip CSV of
// shape and intensity descriptors per sample.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/imaging"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/extractcyto"
)

var featureColumns = []string{
	"area",
	"area_filled",
	"perimeter",
	"major_axis_length",
	"minor_axis_length",
	"eccentricity",
	"equivalent_diameter",
	"solidity",
	"extent",
	"width",
	"height",
	"intensity_mean",
	"intensity_min",
	"intensity_max",
	"intensity_std",
}

// Stage computes image features for one sample.
type Stage struct {
	layout  project.Layout
	workers int
	logger  *slog.Logger
}

// New builds the compute-features stage. workers bounds intra-sample
// parallelism across images.
func New(layout project.Layout, workers int, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Stage{layout: layout, workers: workers, logger: logger}
}

func (s *Stage) Name() string { return "compute-features" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactImages}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactImageFeatures }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.ImageFeatures(sampleID))
}

type measurement struct {
	particleID int64
	features   imaging.Features
	err        error
}

// Run measures every PNG in the sample's image directory. Images where no
// region can be segmented are skipped with a warning; rows come out sorted
// by particle identifier regardless of worker interleaving.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	dir := s.layout.ImageDir(sampleID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read image dir: %w", err)
	}

	var particleIDs []int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".png") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".png"), 10, 64)
		if err != nil {
			continue
		}
		particleIDs = append(particleIDs, id)
	}
	if len(particleIDs) == 0 {
		return services.Wrap(services.ErrValidation, s.Name(), "measure images",
			fmt.Sprintf("sample %s has no images", sampleID), nil)
	}
	sort.Slice(particleIDs, func(i, j int) bool { return particleIDs[i] < particleIDs[j] })

	results := make([]measurement, len(particleIDs))
	workers := s.workers
	if workers > len(particleIDs) {
		workers = len(particleIDs)
	}
	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = s.measure(dir, particleIDs[i])
			}
		}()
	}
	for i := range particleIDs {
		if ctx.Err() != nil {
			break
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	header := append([]string{"object_id"}, prefixed(featureColumns)...)
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		if result.err != nil {
			if errors.Is(result.err, imaging.ErrNoRegion) {
				s.logger.Warn("no region segmented, skipping image",
					logging.String("sample_id", sampleID),
					logging.Int64("particle_id", result.particleID),
				)
				continue
			}
			return services.Wrap(services.ErrValidation, s.Name(), "measure images",
				fmt.Sprintf("sample %s particle %d", sampleID, result.particleID), result.err)
		}
		rows = append(rows, featureRow(sampleID, result))
	}
	if len(rows) == 0 {
		return services.Wrap(services.ErrValidation, s.Name(), "measure images",
			fmt.Sprintf("sample %s produced no measurable regions", sampleID), nil)
	}

	if err := fileutil.WriteCSVGz(s.layout.ImageFeatures(sampleID), header, rows); err != nil {
		return fmt.Errorf("write image features: %w", err)
	}
	s.logger.Debug("image features written",
		logging.String("sample_id", sampleID), logging.Int("images", len(rows)))
	return nil
}

func (s *Stage) measure(dir string, particleID int64) measurement {
	result := measurement{particleID: particleID}
	path := filepath.Join(dir, strconv.FormatInt(particleID, 10)+".png")
	file, err := os.Open(path)
	if err != nil {
		result.err = err
		return result
	}
	defer file.Close()

	img, err := imaging.DecodeGray(file)
	if err != nil {
		result.err = fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		return result
	}
	mask := imaging.Close(imaging.Threshold(img, imaging.Otsu(img)))
	region, err := imaging.LargestRegion(mask)
	if err != nil {
		result.err = err
		return result
	}
	result.features = imaging.Measure(region, img)
	return result
}

func prefixed(columns []string) []string {
	out := make([]string, len(columns))
	for i, column := range columns {
		out[i] = "img_" + column
	}
	return out
}

func featureRow(sampleID string, m measurement) []string {
	f := m.features
	values := []float64{
		f.Area,
		f.FilledArea,
		f.Perimeter,
		f.MajorAxisLength,
		f.MinorAxisLength,
		f.Eccentricity,
		f.EquivalentDiameter,
		f.Solidity,
		f.Extent,
		f.Width,
		f.Height,
		f.MeanIntensity,
		f.MinIntensity,
		f.MaxIntensity,
		f.StdIntensity,
	}
	row := make([]string, 0, len(values)+1)
	row = append(row, extractcyto.ObjectID(sampleID, m.particleID))
	for _, v := range values {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

var _ stage.Stage = (*Stage)(nil)
