package project

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cytopipe/internal/fieldmap"
)

// EcoTaxa identifies the remote repository project this tree submits to.
type EcoTaxa struct {
	ProjectID int `yaml:"project_id"`
}

// Settings is the per-project configuration stored in config/config.yaml.
// Users edit it between runs; stages only ever read it.
type Settings struct {
	// Sample maps instrument metadata field paths to sample column names
	// (the sample_ prefix is added on output).
	Sample fieldmap.Mapping `yaml:"sample"`
	// Object maps particle parameter paths to object column names (the
	// object_ prefix is added on output).
	Object  fieldmap.Mapping `yaml:"object"`
	EcoTaxa EcoTaxa          `yaml:"ecotaxa"`
}

const defaultConfigYAML = `# cytopipe project configuration.
#
# sample: maps instrument metadata paths to sample metadata columns.
#   Run 'cytopipe extract-meta <project> --list' to see available paths.
# object: maps particle parameter paths to per-object feature columns.
#   Run 'cytopipe extract-cyto <project> --list' to see available paths.
#
# Example:
# sample:
#   measurementSettings.duration: duration
# object:
#   FWS.length: fws_length
#   FWS.total: fws_total

sample: {}
object: {}

ecotaxa:
  # Numeric project id on the annotation repository (shown in the project URL).
  project_id: 0
`

// LoadSettings reads the per-project configuration file.
func (l Layout) LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(l.ConfigFile())
	if err != nil {
		return nil, fmt.Errorf("read project config: %w", err)
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse project config: %w", err)
	}
	if settings.Sample == nil {
		settings.Sample = fieldmap.Mapping{}
	}
	if settings.Object == nil {
		settings.Object = fieldmap.Mapping{}
	}
	return &settings, nil
}

// writeDefaultConfig seeds config.yaml on project creation. Existing files
// are left untouched so re-creating a project preserves user mappings.
func writeDefaultConfig(l Layout) error {
	path := l.ConfigFile()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat project config: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}
	return nil
}
