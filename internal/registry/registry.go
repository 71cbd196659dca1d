// Package registry maintains the sample registry, the single source of
// truth for which samples participate in pipeline stages.
//
// The registry is a CSV file (meta/samples.csv) with one row per raw
// acquisition file. Users add metadata columns and edit cells between runs,
// so reconciliation is strictly additive: existing rows and user columns
// are preserved verbatim, new raw files are appended, and rows whose raw
// file disappeared are flagged rather than deleted.
package registry

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/project"
	"cytopipe/internal/services"
)

const (
	// ColumnSampleID is the stable identifier column, the sole join key
	// across all project areas.
	ColumnSampleID = "sample_id"
	// ColumnTitle is a derived display title for listings.
	ColumnTitle = "title"
	// ColumnMissing flags rows whose raw file no longer exists.
	ColumnMissing = "missing"
)

// Row is one sample record. Values holds every cell keyed by column name,
// including user-added columns the recognized schema knows nothing about.
type Row struct {
	Values map[string]string
}

// SampleID returns the row's stable identifier.
func (r Row) SampleID() string { return r.Values[ColumnSampleID] }

// Missing reports whether the raw file behind this row has disappeared.
func (r Row) Missing() bool { return r.Values[ColumnMissing] == "true" }

// Registry is the ordered collection of sample rows.
type Registry struct {
	Columns []string
	Rows    []Row
}

// SampleIDs returns identifiers in registry order, the stable processing
// order for all stages.
func (r *Registry) SampleIDs() []string {
	ids := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		ids = append(ids, row.SampleID())
	}
	return ids
}

// Lookup finds a row by sample identifier.
func (r *Registry) Lookup(sampleID string) (Row, bool) {
	for _, row := range r.Rows {
		if row.SampleID() == sampleID {
			return row, true
		}
	}
	return Row{}, false
}

// ScanRaw enumerates sample identifiers from the raw area, sorted by name.
func ScanRaw(layout project.Layout) ([]string, error) {
	entries, err := os.ReadDir(layout.Dir(project.AreaRaw))
	if err != nil {
		return nil, fmt.Errorf("scan raw area: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".cyz") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads the registry file. A missing file is reported with
// services.ErrNotFound so callers can distinguish "never listed" from I/O
// failures.
func Load(layout project.Layout) (*Registry, error) {
	data, err := os.ReadFile(layout.RegistryFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: registry %s (run 'cytopipe list' first)", services.ErrNotFound, layout.RegistryFile())
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(records) == 0 {
		return &Registry{Columns: baseColumns(nil)}, nil
	}

	columns := records[0]
	reg := &Registry{Columns: columns}
	for _, record := range records[1:] {
		row := Row{Values: make(map[string]string, len(columns))}
		for i, column := range columns {
			if i < len(record) {
				row.Values[column] = record[i]
			}
		}
		if row.SampleID() == "" {
			continue
		}
		reg.Rows = append(reg.Rows, row)
	}
	return reg, nil
}

// Save writes the registry atomically, preserving column order.
func Save(layout project.Layout, reg *Registry) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(reg.Columns); err != nil {
		return fmt.Errorf("encode registry header: %w", err)
	}
	for _, row := range reg.Rows {
		record := make([]string, len(reg.Columns))
		for i, column := range reg.Columns {
			record[i] = row.Values[column]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("encode registry row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := fileutil.WriteFileAtomic(layout.RegistryFile(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// Reconcile merges the current raw file set into an existing registry.
// Existing rows keep every cell; new identifiers are appended with empty
// metadata; rows without a raw file are flagged missing. extraFields are
// added as columns when absent. The returned bool reports whether anything
// changed and the file needs rewriting.
func Reconcile(existing *Registry, rawIDs []string, extraFields []string) (*Registry, bool) {
	changed := false

	if existing == nil {
		existing = &Registry{}
		changed = true
	}

	columns := existing.Columns
	if len(columns) == 0 {
		columns = baseColumns(extraFields)
		changed = true
	} else {
		for _, field := range extraFields {
			if !containsColumn(columns, field) {
				columns = append(columns, field)
				changed = true
			}
		}
	}

	merged := &Registry{Columns: columns}
	present := make(map[string]struct{}, len(rawIDs))
	for _, id := range rawIDs {
		present[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(existing.Rows))
	for _, row := range existing.Rows {
		id := row.SampleID()
		seen[id] = struct{}{}

		_, hasRaw := present[id]
		wasMissing := row.Missing()
		if hasRaw && wasMissing {
			row.Values[ColumnMissing] = ""
			changed = true
		} else if !hasRaw && !wasMissing {
			row.Values[ColumnMissing] = "true"
			changed = true
		}
		merged.Rows = append(merged.Rows, row)
	}

	for _, id := range rawIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		row := Row{Values: map[string]string{
			ColumnSampleID: id,
			ColumnTitle:    deriveTitle(id),
		}}
		merged.Rows = append(merged.Rows, row)
		changed = true
	}

	return merged, changed
}

func baseColumns(extraFields []string) []string {
	columns := []string{ColumnSampleID, ColumnTitle, ColumnMissing}
	for _, field := range extraFields {
		if !containsColumn(columns, field) {
			columns = append(columns, field)
		}
	}
	return columns
}

func containsColumn(columns []string, name string) bool {
	for _, column := range columns {
		if column == name {
			return true
		}
	}
	return false
}
