// Package document models the structured acquisition documents produced by
// the cyz2json converter.
//
// Converted documents can run to hundreds of megabytes, so sections are
// streamed with json.Decoder rather than loaded whole: callers visit the
// particles or images arrays item by item and only the instrument tree is
// materialized in memory.
package document

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrSectionMissing reports that a requested top-level section does not
// exist in the document.
var ErrSectionMissing = errors.New("document section missing")

// Parameter is one named measurement block of a particle. Besides the
// identifying description, the instrument emits an open-ended set of
// numeric fields, so they are kept as a map rather than a struct.
type Parameter struct {
	Description string
	Fields      map[string]float64
}

// UnmarshalJSON splits the description from the numeric measurement fields.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Fields = make(map[string]float64, len(raw))
	for key, value := range raw {
		if key == "description" {
			if text, ok := value.(string); ok {
				p.Description = text
			}
			continue
		}
		if number, ok := value.(float64); ok {
			p.Fields[key] = number
		}
	}
	return nil
}

// PulseShape is the raw per-channel pulse signal of a particle.
type PulseShape struct {
	Description string    `json:"description"`
	Values      []float64 `json:"values"`
}

// Particle is one detected particle with its measurements.
type Particle struct {
	ParticleID  int64        `json:"particleId"`
	Parameters  []Parameter  `json:"parameters"`
	PulseShapes []PulseShape `json:"pulseShapes"`
}

// ParameterPaths lists the addressable "<description>.<field>" paths of a
// particle, the vocabulary the object field mapping is validated against.
func (p Particle) ParameterPaths() []string {
	var paths []string
	for _, param := range p.Parameters {
		if param.Description == "" {
			continue
		}
		for field := range param.Fields {
			paths = append(paths, param.Description+"."+field)
		}
	}
	return paths
}

// ParameterValue resolves a "<description>.<field>" path against the
// particle's parameter list.
func (p Particle) ParameterValue(path string) (float64, bool) {
	description, field, ok := splitParameterPath(path)
	if !ok {
		return 0, false
	}
	for _, param := range p.Parameters {
		if param.Description != description {
			continue
		}
		value, ok := param.Fields[field]
		return value, ok
	}
	return 0, false
}

func splitParameterPath(path string) (description, field string, ok bool) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i], path[i+1:], i > 0 && i < len(path)-1
		}
	}
	return "", "", false
}

// Image is one particle image payload.
type Image struct {
	ParticleID int64  `json:"particleId"`
	Base64     string `json:"base64"`
}

// Instrument loads the instrument metadata tree of a document.
func Instrument(path string) (map[string]any, error) {
	var tree map[string]any
	err := withSection(path, "instrument", func(dec *json.Decoder) error {
		return dec.Decode(&tree)
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// EachParticle streams the particles section, invoking fn per particle.
func EachParticle(path string, fn func(Particle) error) error {
	return eachItem(path, "particles", func(dec *json.Decoder) error {
		var particle Particle
		if err := dec.Decode(&particle); err != nil {
			return err
		}
		return fn(particle)
	})
}

// FirstParticle returns the first particle of the document, used for field
// discovery (all particles of an acquisition share one parameter shape).
func FirstParticle(path string) (Particle, bool, error) {
	var first Particle
	found := false
	err := eachItem(path, "particles", func(dec *json.Decoder) error {
		if found {
			var skip json.RawMessage
			return dec.Decode(&skip)
		}
		if err := dec.Decode(&first); err != nil {
			return err
		}
		found = true
		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return Particle{}, false, err
	}
	return first, found, nil
}

// EachImage streams the images section, invoking fn per image.
func EachImage(path string, fn func(Image) error) error {
	return eachItem(path, "images", func(dec *json.Decoder) error {
		var image Image
		if err := dec.Decode(&image); err != nil {
			return err
		}
		return fn(image)
	})
}

var errStopIteration = errors.New("stop iteration")

// withSection positions a decoder at the value of one top-level key.
func withSection(path, section string, fn func(*json.Decoder) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(bufio.NewReaderSize(file, 1<<20))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parse document: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("parse document: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("parse document: expected key, got %v", keyTok)
		}
		if key == section {
			return fn(dec)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("parse document: skip %s: %w", key, err)
		}
	}
	return fmt.Errorf("%w: %s", ErrSectionMissing, section)
}

// eachItem streams the elements of a top-level array section.
func eachItem(path, section string, fn func(*json.Decoder) error) error {
	return withSection(path, section, func(dec *json.Decoder) error {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("parse %s: %w", section, err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return fmt.Errorf("parse %s: expected array, got %v", section, tok)
		}
		for dec.More() {
			if err := fn(dec); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("parse %s: %w", section, err)
		}
		return nil
	})
}
