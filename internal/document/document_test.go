package document_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cytopipe/internal/document"
)

const sampleDocument = `{
  "instrument": {
    "name": "CytoSense",
    "measurementSettings": {"duration": 120}
  },
  "particles": [
    {
      "particleId": 7,
      "parameters": [
        {"description": "FWS", "length": 0.98, "total": 40621.9},
        {"description": "Sidewards Scatter", "length": 10.77}
      ],
      "pulseShapes": [
        {"description": "FWS", "values": [0, 4, 9, 4, 0]}
      ]
    },
    {
      "particleId": 8,
      "parameters": [
        {"description": "FWS", "length": 1.2, "total": 100.0}
      ],
      "pulseShapes": []
    }
  ],
  "images": [
    {"particleId": 7, "base64": "aGVsbG8="}
  ]
}`

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInstrument(t *testing.T) {
	path := writeDocument(t, sampleDocument)

	tree, err := document.Instrument(path)
	if err != nil {
		t.Fatal(err)
	}
	if tree["name"] != "CytoSense" {
		t.Fatalf("unexpected instrument tree: %v", tree)
	}
	settings, ok := tree["measurementSettings"].(map[string]any)
	if !ok || settings["duration"] != float64(120) {
		t.Fatalf("nested settings missing: %v", tree)
	}
}

func TestEachParticleStreamsAll(t *testing.T) {
	path := writeDocument(t, sampleDocument)

	var ids []int64
	err := document.EachParticle(path, func(p document.Particle) error {
		ids = append(ids, p.ParticleID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 8 {
		t.Fatalf("unexpected particle ids: %v", ids)
	}
}

func TestParameterPathsAndValues(t *testing.T) {
	path := writeDocument(t, sampleDocument)

	particle, found, err := document.FirstParticle(path)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected a particle")
	}

	paths := make(map[string]bool)
	for _, p := range particle.ParameterPaths() {
		paths[p] = true
	}
	for _, want := range []string{"FWS.length", "FWS.total", "Sidewards Scatter.length"} {
		if !paths[want] {
			t.Fatalf("missing parameter path %q in %v", want, paths)
		}
	}

	if value, ok := particle.ParameterValue("FWS.length"); !ok || value != 0.98 {
		t.Fatalf("FWS.length = %v %v", value, ok)
	}
	if value, ok := particle.ParameterValue("Sidewards Scatter.length"); !ok || value != 10.77 {
		t.Fatalf("Sidewards Scatter.length = %v %v", value, ok)
	}
	if _, ok := particle.ParameterValue("FWS.missing"); ok {
		t.Fatal("unknown field must not resolve")
	}
	if _, ok := particle.ParameterValue("no-dot"); ok {
		t.Fatal("pathless lookup must not resolve")
	}
}

func TestEachImage(t *testing.T) {
	path := writeDocument(t, sampleDocument)

	var images []document.Image
	err := document.EachImage(path, func(img document.Image) error {
		images = append(images, img)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 1 || images[0].ParticleID != 7 || images[0].Base64 != "aGVsbG8=" {
		t.Fatalf("unexpected images: %v", images)
	}
}

func TestMissingSection(t *testing.T) {
	path := writeDocument(t, `{"instrument": {}}`)

	err := document.EachParticle(path, func(document.Particle) error { return nil })
	if !errors.Is(err, document.ErrSectionMissing) {
		t.Fatalf("expected ErrSectionMissing, got %v", err)
	}
}

func TestMalformedDocument(t *testing.T) {
	path := writeDocument(t, `{"particles": [ {"particleId": `)

	err := document.EachParticle(path, func(document.Particle) error { return nil })
	if err == nil {
		t.Fatal("expected parse error for truncated document")
	}
}
