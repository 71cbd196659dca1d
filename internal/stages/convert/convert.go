// Package convert turns raw acquisition files into structured documents by
// driving the external converter binary.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/services/cyz2json"
	"cytopipe/internal/stage"
)

// Stage converts one raw file per invocation.
type Stage struct {
	layout  project.Layout
	client  cyz2json.Client
	logger  *slog.Logger
	timeout time.Duration
}

// New builds the convert stage. A zero timeout disables the per-sample
// deadline.
func New(layout project.Layout, client cyz2json.Client, logger *slog.Logger, timeout time.Duration) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{layout: layout, client: client, logger: logger, timeout: timeout}
}

func (s *Stage) Name() string { return "convert" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactRaw}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactDocument }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.ConvertedDocument(sampleID))
}

// Run converts into a staging path and renames on success, so a crashed or
// killed converter never leaves a partial document behind.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	output := s.layout.ConvertedDocument(sampleID)
	staging := output + ".partial"
	defer os.Remove(staging)

	if err := s.client.Convert(ctx, s.layout.RawFile(sampleID), staging); err != nil {
		return services.Wrap(services.ErrExternalTool, s.Name(), "convert acquisition",
			fmt.Sprintf("sample %s", sampleID), err)
	}
	if !fileutil.FileExists(staging) {
		return services.Wrap(services.ErrExternalTool, s.Name(), "convert acquisition",
			fmt.Sprintf("converter produced no output for sample %s", sampleID), nil)
	}
	if err := os.Rename(staging, output); err != nil {
		return fmt.Errorf("publish document: %w", err)
	}
	return nil
}

var _ stage.Stage = (*Stage)(nil)
