// Package upload submits prepared archives to the annotation platform and
// records a receipt marker per uploaded sample.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/services/ecotaxa"
	"cytopipe/internal/stage"
)

// Uploader is the slice of the platform client this stage needs.
type Uploader interface {
	ProjectSamples(ctx context.Context, projectID int) ([]ecotaxa.Sample, error)
	UploadFile(ctx context.Context, localPath string) (string, error)
	StartImport(ctx context.Context, projectID int, req ecotaxa.ImportRequest) (int, error)
	WaitForJob(ctx context.Context, jobID int) (ecotaxa.Job, error)
}

// Stage uploads one sample's archive per invocation.
type Stage struct {
	layout    project.Layout
	client    Uploader
	projectID int
	logger    *slog.Logger

	remoteOnce sync.Once
	remoteErr  error
	remote     map[string]struct{}
}

// New builds the upload stage for one remote project.
func New(layout project.Layout, client Uploader, projectID int, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{layout: layout, client: client, projectID: projectID, logger: logger}
}

func (s *Stage) Name() string { return "upload" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactExport}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactUploadReceipt }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.UploadReceipt(sampleID))
}

// Run uploads the archive and waits for the server-side import job. A
// sample already present in the remote project is not re-sent; it gets a
// receipt so later invocations skip it without a network round trip.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	if s.projectID <= 0 {
		return services.Wrap(services.ErrConfiguration, s.Name(), "check project",
			"ecotaxa project_id is not set in config.yaml", nil)
	}

	present, err := s.remotePresent(ctx, sampleID)
	if err != nil {
		return services.Wrap(services.ErrTransient, s.Name(), "list remote samples", "", err)
	}
	if present {
		s.logger.Info("sample already present remotely, writing receipt",
			logging.String("sample_id", sampleID))
		return s.writeReceipt(sampleID, 0, "already present remotely")
	}

	remotePath, err := s.client.UploadFile(ctx, s.layout.ExportArchive(sampleID))
	if err != nil {
		return services.Wrap(services.ErrTransient, s.Name(), "upload archive",
			fmt.Sprintf("sample %s", sampleID), err)
	}
	jobID, err := s.client.StartImport(ctx, s.projectID, ecotaxa.ImportRequest{
		SourcePath:          remotePath,
		SkipExistingObjects: true,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, s.Name(), "start import",
			fmt.Sprintf("sample %s", sampleID), err)
	}
	job, err := s.client.WaitForJob(ctx, jobID)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, s.Name(), "await import",
			fmt.Sprintf("sample %s job %d", sampleID, jobID), err)
	}

	s.logger.Info("sample uploaded",
		logging.String("sample_id", sampleID), logging.Int("job_id", job.ID))
	return s.writeReceipt(sampleID, job.ID, "imported")
}

func (s *Stage) remotePresent(ctx context.Context, sampleID string) (bool, error) {
	s.remoteOnce.Do(func() {
		samples, err := s.client.ProjectSamples(ctx, s.projectID)
		if err != nil {
			s.remoteErr = err
			return
		}
		s.remote = make(map[string]struct{}, len(samples))
		for _, sample := range samples {
			s.remote[sample.OrigID] = struct{}{}
		}
	})
	if s.remoteErr != nil {
		return false, s.remoteErr
	}
	_, ok := s.remote[sampleID]
	return ok, nil
}

// writeReceipt records job id and completion time. The receipt is the
// upload's completion artifact, so it goes through the atomic writer like
// every other artifact.
func (s *Stage) writeReceipt(sampleID string, jobID int, status string) error {
	body := fmt.Sprintf("job_id=%d\nstatus=%s\nuploaded_at=%s\n",
		jobID, status, time.Now().UTC().Format(time.RFC3339))
	if err := fileutil.WriteFileAtomic(s.layout.UploadReceipt(sampleID), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write upload receipt: %w", err)
	}
	return nil
}

var _ stage.Stage = (*Stage)(nil)
