package pipeline

import (
	"errors"
	"fmt"

	"cytopipe/internal/document"
	"cytopipe/internal/fieldmap"
	"cytopipe/internal/fileutil"
	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/services"
)

// ValidateMappings checks the project's field mappings against the fields
// actually present in converted documents. A typo in config.yaml would
// otherwise silently drop columns from every sample, so unknown keys are a
// configuration error.
//
// Validation needs at least one converted document per vocabulary; before
// any conversion has happened there is nothing to check against and the
// mappings pass vacuously.
func ValidateMappings(layout project.Layout, settings *project.Settings) error {
	reg, err := registry.Load(layout)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	}

	var metaPaths []string
	var objectPaths []string
	for _, sampleID := range reg.SampleIDs() {
		docPath := layout.ConvertedDocument(sampleID)
		if !fileutil.FileExists(docPath) {
			continue
		}
		if len(settings.Sample) > 0 {
			tree, err := document.Instrument(docPath)
			if err != nil {
				return services.Wrap(services.ErrValidation, "validate", "discover metadata fields",
					fmt.Sprintf("sample %s", sampleID), err)
			}
			metaPaths = append(metaPaths, fieldmap.Discover(tree)...)
		}
		if len(settings.Object) > 0 && objectPaths == nil {
			particle, found, err := document.FirstParticle(docPath)
			if err != nil {
				return services.Wrap(services.ErrValidation, "validate", "discover particle fields",
					fmt.Sprintf("sample %s", sampleID), err)
			}
			if found {
				objectPaths = particle.ParameterPaths()
			}
		}
	}

	var errs []error
	if len(settings.Sample) > 0 && metaPaths != nil {
		for _, err := range settings.Sample.Validate(fieldmap.KnownSet(metaPaths)) {
			errs = append(errs, fmt.Errorf("sample mapping: %w", err))
		}
	}
	if len(settings.Object) > 0 && objectPaths != nil {
		for _, err := range settings.Object.Validate(fieldmap.KnownSet(objectPaths)) {
			errs = append(errs, fmt.Errorf("object mapping: %w", err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "validate", "check field mappings",
		"project field mapping references unknown fields", errors.Join(errs...))
}
