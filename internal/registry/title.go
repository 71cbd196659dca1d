package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// deriveTitle turns a raw file stem like "north_sea-2026_03_14-d10" into a
// readable listing title. Identifiers stay untouched; this is display only.
func deriveTitle(sampleID string) string {
	if sampleID == "" {
		return "Unknown Sample"
	}
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range sampleID {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Unknown Sample"
	}
	return cases.Title(language.Und, cases.NoLower).String(title)
}
