// Package export packages one sample's tabular artifacts and images into a
// submission archive for the annotation platform.
//
// The archive holds one TSV (header row, then a type row marking each
// column [t]ext or [f]loat, then one data row per particle image) plus the
// referenced PNGs. Columns are grouped by prefix in the platform's
// conventional order: img_, object_, process_, acq_, sample_.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cytopipe/internal/fileutil"
	"cytopipe/internal/logging"
	"cytopipe/internal/project"
	"cytopipe/internal/registry"
	"cytopipe/internal/services"
	"cytopipe/internal/stage"
)

// ProcessID names this pipeline in the process_id column of every export.
const ProcessID = "cytopipe"

var groupOrder = []string{"img_", "object_", "process_", "acq_", "sample_"}

// groupLimit caps the column count per prefix group; the platform rejects
// imports beyond these.
var groupLimit = map[string]int{
	"img_":     50,
	"object_":  500,
	"process_": 50,
	"acq_":     50,
	"sample_":  50,
}

// Stage builds the submission archive of one sample.
type Stage struct {
	layout project.Layout
	logger *slog.Logger
}

// New builds the prepare stage.
func New(layout project.Layout, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{layout: layout, logger: logger}
}

func (s *Stage) Name() string { return "prepare" }

func (s *Stage) Requires() []stage.ArtifactKind {
	return []stage.ArtifactKind{
		stage.ArtifactSampleMeta,
		stage.ArtifactCytoFeatures,
		stage.ArtifactPulseSummary,
		stage.ArtifactImages,
		stage.ArtifactImageFeatures,
	}
}

func (s *Stage) Output() stage.ArtifactKind { return stage.ArtifactExport }

func (s *Stage) IsDone(sampleID string) bool {
	return fileutil.FileExists(s.layout.ExportArchive(sampleID))
}

// Run merges the per-sample tables on object_id and zips the TSV together
// with every referenced image. Rows are driven by the image-features table:
// a particle without a measurable image has nothing to annotate.
func (s *Stage) Run(ctx context.Context, sampleID string) error {
	table, imageNames, err := s.buildTable(sampleID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	archivePath := s.layout.ExportArchive(sampleID)
	tsvName := "ecotaxa_" + sampleID + ".tsv"
	err = fileutil.WriteAtomic(archivePath, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		entry, err := zw.Create(tsvName)
		if err != nil {
			return fmt.Errorf("create tsv entry: %w", err)
		}
		if err := writeTSV(entry, table); err != nil {
			return err
		}
		for _, name := range imageNames {
			entry, err := zw.Create(name)
			if err != nil {
				return fmt.Errorf("create image entry: %w", err)
			}
			file, err := os.Open(filepath.Join(s.layout.ImageDir(sampleID), name))
			if err != nil {
				return fmt.Errorf("open image %s: %w", name, err)
			}
			_, err = io.Copy(entry, file)
			file.Close()
			if err != nil {
				return fmt.Errorf("archive image %s: %w", name, err)
			}
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("write export archive: %w", err)
	}
	s.logger.Debug("export archive written",
		logging.String("sample_id", sampleID),
		logging.Int("objects", len(table.rows)),
		logging.Int("images", len(imageNames)),
	)
	return nil
}

// table is a merged, grouped, capped TSV in memory.
type table struct {
	columns []string
	rows    [][]string
}

func (s *Stage) buildTable(sampleID string) (*table, []string, error) {
	wrap := func(operation string, err error) error {
		return services.Wrap(services.ErrValidation, s.Name(), operation,
			fmt.Sprintf("sample %s", sampleID), err)
	}

	cyto, err := readKeyed(fileutil.ReadCSVGz, s.layout.CytoFeatures(sampleID))
	if err != nil {
		return nil, nil, wrap("read cytometric features", err)
	}
	pulses, err := readKeyed(fileutil.ReadCSVGz, s.layout.PulseSummary(sampleID))
	if err != nil {
		return nil, nil, wrap("read pulse summary", err)
	}
	imgFeatures, err := readKeyed(fileutil.ReadCSVGz, s.layout.ImageFeatures(sampleID))
	if err != nil {
		return nil, nil, wrap("read image features", err)
	}
	sampleMeta, err := readSampleMeta(s.layout.SampleMetadata(sampleID))
	if err != nil {
		return nil, nil, wrap("read sample metadata", err)
	}
	registryMeta, err := s.registryMetadata(sampleID)
	if err != nil {
		return nil, nil, wrap("read registry metadata", err)
	}

	// Constant per-object columns: identifiers, registry metadata, sample
	// metadata.
	constants := map[string]string{
		"process_id": ProcessID,
		"acq_id":     sampleID,
		"sample_id":  sampleID,
	}
	for column, value := range registryMeta {
		constants[column] = value
	}
	for column, value := range sampleMeta {
		constants[column] = value
	}

	columnSet := map[string]struct{}{
		"img_file_name": {}, "img_rank": {}, "object_id": {},
	}
	for _, keyed := range []*keyedTable{cyto, pulses, imgFeatures} {
		for _, column := range keyed.columns {
			columnSet[column] = struct{}{}
		}
	}
	for column := range constants {
		columnSet[column] = struct{}{}
	}
	columns := s.orderAndCap(columnSet, sampleID)

	// Rows are driven by the image-features table.
	var rows [][]string
	var imageNames []string
	for _, objectID := range imgFeatures.order {
		particle := strings.TrimPrefix(objectID, sampleID+"_")
		imageName := particle + ".png"
		imageNames = append(imageNames, imageName)

		cells := map[string]string{
			"object_id":     objectID,
			"img_file_name": imageName,
			"img_rank":      "0",
		}
		for column, value := range constants {
			cells[column] = value
		}
		imgFeatures.fill(cells, objectID)
		cyto.fill(cells, objectID)
		pulses.fill(cells, objectID)

		row := make([]string, len(columns))
		for i, column := range columns {
			row[i] = cells[column]
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil, wrap("merge tables", fmt.Errorf("no objects to export"))
	}
	return &table{columns: columns, rows: rows}, imageNames, nil
}

// orderAndCap sorts columns into the platform's group order and enforces
// the per-group caps, logging what gets dropped.
func (s *Stage) orderAndCap(columnSet map[string]struct{}, sampleID string) []string {
	var columns []string
	for _, prefix := range groupOrder {
		var group []string
		for column := range columnSet {
			if strings.HasPrefix(column, prefix) {
				group = append(group, column)
			}
		}
		sortGroup(group)
		if limit := groupLimit[prefix]; len(group) > limit {
			s.logger.Warn("column group truncated",
				logging.String("sample_id", sampleID),
				logging.String("group", strings.TrimSuffix(prefix, "_")),
				logging.Int("columns", len(group)),
				logging.Int("limit", limit),
			)
			group = group[:limit]
		}
		columns = append(columns, group...)
	}
	return columns
}

// sortGroup orders a column group with its identifying columns first.
func sortGroup(group []string) {
	rank := func(column string) int {
		switch column {
		case "img_file_name":
			return 0
		case "img_rank", "object_id", "process_id", "acq_id", "sample_id":
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(group, func(i, j int) bool {
		ri, rj := rank(group[i]), rank(group[j])
		if ri != rj {
			return ri < rj
		}
		return group[i] < group[j]
	})
}

// writeTSV emits header, [t]/[f] type row, then data.
func writeTSV(w io.Writer, t *table) error {
	if _, err := fmt.Fprintln(w, strings.Join(t.columns, "\t")); err != nil {
		return fmt.Errorf("write tsv header: %w", err)
	}
	types := make([]string, len(t.columns))
	for i := range t.columns {
		types[i] = columnType(t, i)
	}
	if _, err := fmt.Fprintln(w, strings.Join(types, "\t")); err != nil {
		return fmt.Errorf("write tsv type row: %w", err)
	}
	for _, row := range t.rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return fmt.Errorf("write tsv row: %w", err)
		}
	}
	return nil
}

// columnType marks a column [f] when every non-empty cell parses as a
// number, [t] otherwise. Identifier columns are always text.
func columnType(t *table, index int) string {
	switch t.columns[index] {
	case "img_file_name", "object_id", "process_id", "acq_id", "sample_id":
		return "[t]"
	}
	numeric := false
	for _, row := range t.rows {
		cell := row[index]
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return "[t]"
		}
		numeric = true
	}
	if numeric {
		return "[f]"
	}
	return "[t]"
}

// keyedTable is a CSV indexed by its object_id column.
type keyedTable struct {
	columns []string
	order   []string
	rows    map[string][]string
}

func readKeyed(read func(string) ([][]string, error), path string) (*keyedTable, error) {
	records, err := read(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty table", filepath.Base(path))
	}
	header := records[0]
	if len(header) == 0 || header[0] != "object_id" {
		return nil, fmt.Errorf("%s: first column must be object_id", filepath.Base(path))
	}
	keyed := &keyedTable{columns: header[1:], rows: make(map[string][]string, len(records)-1)}
	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		objectID := record[0]
		keyed.order = append(keyed.order, objectID)
		keyed.rows[objectID] = record[1:]
	}
	return keyed, nil
}

// fill copies this table's cells for one object into the merged cell map.
func (k *keyedTable) fill(cells map[string]string, objectID string) {
	row, ok := k.rows[objectID]
	if !ok {
		return
	}
	for i, column := range k.columns {
		if i < len(row) {
			cells[column] = row[i]
		}
	}
}

// readSampleMeta loads the one-row sample metadata CSV into a column map,
// dropping the sample_id join key (re-emitted as a constant).
func readSampleMeta(path string) (map[string]string, error) {
	records, err := fileutil.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: expected header and one row", filepath.Base(path))
	}
	meta := make(map[string]string, len(records[0]))
	for i, column := range records[0] {
		if column == "sample_id" || i >= len(records[1]) {
			continue
		}
		meta[column] = records[1][i]
	}
	return meta, nil
}

// registryMetadata extracts the user metadata columns of one registry row.
// Columns already carrying a platform prefix pass through verbatim; bare
// user columns are exported in the sample_ group.
func (s *Stage) registryMetadata(sampleID string) (map[string]string, error) {
	reg, err := registry.Load(s.layout)
	if err != nil {
		return nil, err
	}
	row, ok := reg.Lookup(sampleID)
	if !ok {
		return nil, fmt.Errorf("%w: sample %q not in registry", services.ErrNotFound, sampleID)
	}

	meta := make(map[string]string)
	for _, column := range reg.Columns {
		switch column {
		case registry.ColumnSampleID, registry.ColumnTitle, registry.ColumnMissing:
			continue
		}
		value := row.Values[column]
		if value == "" {
			continue
		}
		if hasGroupPrefix(column) {
			meta[column] = value
		} else {
			meta["sample_"+column] = value
		}
	}
	return meta, nil
}

func hasGroupPrefix(column string) bool {
	for _, prefix := range groupOrder {
		if strings.HasPrefix(column, prefix) {
			return true
		}
	}
	return false
}

var _ stage.Stage = (*Stage)(nil)
