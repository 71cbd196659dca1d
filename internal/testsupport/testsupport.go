// Package testsupport builds project fixtures shared by stage tests.
package testsupport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"cytopipe/internal/project"
	"cytopipe/internal/registry"
)

// NewProject creates a project under a temp dir.
func NewProject(t *testing.T) project.Layout {
	t.Helper()
	layout, err := project.Create(filepath.Join(t.TempDir(), "proj"))
	if err != nil {
		t.Fatal(err)
	}
	return layout
}

// AddSample drops a raw file for the sample and reconciles the registry.
func AddSample(t *testing.T, layout project.Layout, sampleID string) {
	t.Helper()
	if err := os.WriteFile(layout.RawFile(sampleID), []byte("cyz"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Load(layout)
	if err != nil {
		reg = nil
	}
	ids, err := registry.ScanRaw(layout)
	if err != nil {
		t.Fatal(err)
	}
	merged, _ := registry.Reconcile(reg, ids, nil)
	if err := registry.Save(layout, merged); err != nil {
		t.Fatal(err)
	}
}

// Particle is one particle of a fixture document.
type Particle struct {
	ID         int64
	Parameters map[string]map[string]float64
	Pulses     map[string][]float64
	Image      []byte
}

// WriteDocument assembles a converted document from fixture particles and
// writes it where the convert stage would.
func WriteDocument(t *testing.T, layout project.Layout, sampleID string, instrument map[string]any, particles []Particle) {
	t.Helper()

	doc := map[string]any{"instrument": instrument}
	var docParticles []map[string]any
	var docImages []map[string]any
	for _, p := range particles {
		var params []map[string]any
		for description, fields := range p.Parameters {
			param := map[string]any{"description": description}
			for key, value := range fields {
				param[key] = value
			}
			params = append(params, param)
		}
		var shapes []map[string]any
		for description, values := range p.Pulses {
			shapes = append(shapes, map[string]any{"description": description, "values": values})
		}
		docParticles = append(docParticles, map[string]any{
			"particleId":  p.ID,
			"parameters":  params,
			"pulseShapes": shapes,
		})
		if p.Image != nil {
			docImages = append(docImages, map[string]any{
				"particleId": p.ID,
				"base64":     base64.StdEncoding.EncodeToString(p.Image),
			})
		}
	}
	doc["particles"] = docParticles
	if len(docImages) > 0 {
		doc["images"] = docImages
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.ConvertedDocument(sampleID), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// PNG renders a small particle crop: a dark square centered on a light
// background.
func PNG(t *testing.T, size, particle int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	offset := (size - particle) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			value := uint8(220)
			if x >= offset && x < offset+particle && y >= offset && y < offset+particle {
				value = 30
			}
			img.SetGray(x, y, color.Gray{Y: value})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// DefaultParticles builds two particles with FWS/SWS parameters, pulse
// shapes, and images.
func DefaultParticles(t *testing.T) []Particle {
	t.Helper()
	return []Particle{
		{
			ID: 1,
			Parameters: map[string]map[string]float64{
				"FWS": {"length": 12.5, "total": 310},
				"SWS": {"length": 4.5, "total": 88},
			},
			Pulses: map[string][]float64{
				"FWS": {1, 5, 9, 5, 1},
				"SWS": {0, 2, 4, 2, 0},
			},
			Image: PNG(t, 20, 8),
		},
		{
			ID: 2,
			Parameters: map[string]map[string]float64{
				"FWS": {"length": 7.25, "total": 120},
				"SWS": {"length": 2, "total": 31},
			},
			Pulses: map[string][]float64{
				"FWS": {2, 6, 10, 6, 2},
				"SWS": {1, 3, 5, 3, 1},
			},
			Image: PNG(t, 16, 6),
		},
	}
}

// DefaultInstrument builds the instrument tree fixtures use.
func DefaultInstrument() map[string]any {
	return map[string]any{
		"name": "CytoSense",
		"measurementSettings": map[string]any{
			"duration":  120.0,
			"pumpSpeed": 2.1,
		},
	}
}
