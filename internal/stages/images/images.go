// Package images materialises the embedded particle images of a sample
// into per-sample PNG directories.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"cytopipe/internal/document"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
)

// Stage extracts the images of one sample.
type Stage struct {
	layout project.Layout
	logger *slog.Logger
}

// New builds the extract-images stage.
func New(layout project.Layout, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{layout: layout, logger: logger}
}

func (s *Stage) Name() string { return "extract-images" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactDocument}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactImages }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.DirNonEmpty(s.layout.ImageDir(sampleID))
}

// Run decodes every image payload into a staging directory, renamed into
// place once complete. Individual corrupt payloads are skipped with a
// warning; a document without any decodable image fails the stage since
// every downstream step needs the images.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	target := s.layout.ImageDir(sampleID)
	staging := target + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	extracted := 0
	err := document.EachImage(s.layout.ConvertedDocument(sampleID), func(img document.Image) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := base64.StdEncoding.DecodeString(img.Base64)
		if err != nil || len(payload) == 0 {
			s.logger.Warn("skipping corrupt image payload",
				logging.String("sample_id", sampleID),
				logging.Int64("particle_id", img.ParticleID),
			)
			return nil
		}
		name := strconv.FormatInt(img.ParticleID, 10) + ".png"
		if err := os.WriteFile(filepath.Join(staging, name), payload, 0o644); err != nil {
			return fmt.Errorf("write image %s: %w", name, err)
		}
		extracted++
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, s.Name(), "extract images",
			fmt.Sprintf("sample %s", sampleID), err)
	}
	if extracted == 0 {
		return services.Wrap(services.ErrValidation, s.Name(), "extract images",
			fmt.Sprintf("sample %s has no decodable images", sampleID), nil)
	}

	if err := fileutil.RenameDirAtomic(staging, target); err != nil {
		return fmt.Errorf("publish image dir: %w", err)
	}
	s.logger.Debug("images extracted",
		logging.String("sample_id", sampleID), logging.Int("count", extracted))
	return nil
}

var _ stage.Stage = (*Stage)(nil)
