// Package pulseshapes condenses raw pulse signals into polynomial
// descriptors, one gzip CSV per sample.
package pulseshapes

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"cytopipe/internal/document"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/pulse"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
	"cytopipe/internal/stages/extractcyto"
)

// Stage summarises the pulse shapes of one sample.
type Stage struct {
	layout       project.Layout
	coefficients int
	logger       *slog.Logger
}

// New builds the summarise-pulses stage. coefficients is the number of
// polynomial terms per channel (fit degree is coefficients-1).
func New(layout project.Layout, coefficients int, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	if coefficients < 1 {
		coefficients = 1
	}
	return &Stage{layout: layout, coefficients: coefficients, logger: logger}
}

func (s *Stage) Name() string { return "summarise-pulses" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{stage.ArtifactDocument}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactPulseSummary }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.PulseSummary(sampleID))
}

// Run streams particles once. The channel set and column order come from
// the first particle; a channel a later particle lacks produces empty
// cells rather than an error.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	var channels []string
	var header []string
	var rows [][]string
	degree := s.coefficients - 1

	err := document.EachParticle(s.layout.ConvertedDocument(sampleID), func(p document.Particle) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if channels == nil {
			for _, shape := range p.PulseShapes {
				channels = append(channels, shape.Description)
			}
			header = buildHeader(channels, s.coefficients)
		}

		byChannel := make(map[string][]float64, len(p.PulseShapes))
		for _, shape := range p.PulseShapes {
			byChannel[shape.Description] = shape.Values
		}

		row := make([]string, 0, len(header))
		row = append(row, extractcyto.ObjectID(sampleID, p.ParticleID))
		for _, channel := range channels {
			values, ok := byChannel[channel]
			if !ok || len(values) == 0 {
				for i := 0; i < s.coefficients; i++ {
					row = append(row, "")
				}
				continue
			}
			coeffs, err := pulse.FitNormalized(values, degree)
			if err != nil {
				return fmt.Errorf("fit particle %d channel %s: %w", p.ParticleID, channel, err)
			}
			for _, c := range coeffs {
				row = append(row, strconv.FormatFloat(c, 'g', -1, 64))
			}
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, s.Name(), "summarise pulses",
			fmt.Sprintf("sample %s", sampleID), err)
	}
	if len(rows) == 0 {
		return services.Wrap(services.ErrValidation, s.Name(), "summarise pulses",
			fmt.Sprintf("sample %s has no particles", sampleID), nil)
	}

	if err := fileutil.WriteCSVGz(s.layout.PulseSummary(sampleID), header, rows); err != nil {
		return fmt.Errorf("write pulse summary: %w", err)
	}
	s.logger.Debug("pulse summary written",
		logging.String("sample_id", sampleID),
		logging.Int("particles", len(rows)),
		logging.Int("channels", len(channels)),
	)
	return nil
}

func buildHeader(channels []string, coefficients int) []string {
	header := []string{"object_id"}
	for _, channel := range channels {
		name := columnName(channel)
		for i := 0; i < coefficients; i++ {
			header = append(header, fmt.Sprintf("object_%s_p%d", name, i))
		}
	}
	return header
}

// columnName flattens a channel description into a column-safe token.
func columnName(description string) string {
	name := strings.ToLower(strings.TrimSpace(description))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.Trim(name, "_")
}

var _ stage.Stage = (*Stage)(nil)
