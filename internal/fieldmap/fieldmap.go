// Package fieldmap translates instrument-specific metadata field paths into
// curated output column names.
//
// The instrument's metadata vocabulary is open-ended, so nothing here
// hardcodes field names: Discover flattens whatever tree a document carries
// into dotted paths, users copy the paths they care about into the project
// mapping, and Validate catches typos before a long batch run can silently
// drop data.
package fieldmap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mapping translates fully-qualified source field paths to destination
// column names. Paths absent from the mapping are simply not extracted.
type Mapping map[string]string

// Resolve looks up a discovered field path. The second return is false when
// the path is unmapped, which excludes the field from output without error.
func (m Mapping) Resolve(path string) (string, bool) {
	target, ok := m[path]
	if !ok || strings.TrimSpace(target) == "" {
		return "", false
	}
	return target, true
}

// SortedPaths returns the mapping keys in stable order, so output columns
// do not shuffle between runs.
func (m Mapping) SortedPaths() []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// UnknownKeyError reports a mapping key that does not exist in any
// discovered document.
type UnknownKeyError struct {
	Key string
}

func (e UnknownKeyError) Error() string {
	return fmt.Sprintf("mapping key %q not found in any sample document", e.Key)
}

// Validate checks every mapping key against the set of discoverable field
// paths and returns one error per unknown key. Unknown keys are a
// configuration error, not a soft skip: a typo would otherwise silently
// drop metadata from every sample.
func (m Mapping) Validate(known map[string]struct{}) []error {
	var errs []error
	for _, path := range m.SortedPaths() {
		if _, ok := known[path]; !ok {
			errs = append(errs, UnknownKeyError{Key: path})
		}
	}
	return errs
}

// Discover flattens a structured document tree into dotted field paths.
// Nested maps recurse; list values are noted with [] and their structure is
// taken from the first element (acquisition documents repeat one shape).
func Discover(tree map[string]any) []string {
	var paths []string
	discoverInto(&paths, "", tree)
	return paths
}

func discoverInto(paths *[]string, prefix string, tree map[string]any) {
	for key, value := range tree {
		current := key
		if prefix != "" {
			current = prefix + "." + key
		}
		switch typed := value.(type) {
		case map[string]any:
			*paths = append(*paths, current)
			discoverInto(paths, current, typed)
		case []any:
			listPath := current + "[]"
			*paths = append(*paths, listPath)
			if len(typed) > 0 {
				if first, ok := typed[0].(map[string]any); ok {
					discoverInto(paths, listPath, first)
				}
			}
		default:
			*paths = append(*paths, current)
		}
	}
}

// ValueAt resolves a dotted path against a document tree, mirroring the
// path syntax Discover emits: `[]` selects the first element of a list.
func ValueAt(tree map[string]any, path string) (any, bool) {
	var current any = tree
	for _, segment := range strings.Split(path, ".") {
		list := strings.HasSuffix(segment, "[]")
		key := strings.TrimSuffix(segment, "[]")

		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := node[key]
		if !ok {
			return nil, false
		}
		if list {
			items, ok := value.([]any)
			if !ok || len(items) == 0 {
				return nil, false
			}
			value = items[0]
		}
		current = value
	}
	return current, true
}

// FormatValue renders a resolved value as an output cell. Nested structures
// are not representable in a flat column and resolve to empty.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return fmt.Sprintf("%t", typed)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// KnownSet converts discovered paths into the lookup set Validate expects.
func KnownSet(paths []string) map[string]struct{} {
	known := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		known[path] = struct{}{}
	}
	return known
}

// Dedupe sorts and deduplicates paths gathered across several documents.
func Dedupe(paths []string) []string {
	sort.Strings(paths)
	out := paths[:0]
	var prev string
	for i, path := range paths {
		if i > 0 && path == prev {
			continue
		}
		out = append(out, path)
		prev = path
	}
	return out
}
