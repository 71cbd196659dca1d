package fileutil

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// WriteCSVGz writes a gzip-compressed CSV artifact atomically.
func WriteCSVGz(path string, header []string, rows [][]string) error {
	return WriteAtomic(path, func(w io.Writer) error {
		gz := gzip.NewWriter(w)
		writer := csv.NewWriter(gz)
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
		for _, row := range rows {
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("encode row: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("encode csv: %w", err)
		}
		return gz.Close()
	})
}

// ReadCSVGz reads back a gzip-compressed CSV artifact, header row included.
func ReadCSVGz(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// ReadCSV reads a plain CSV file, header row included.
func ReadCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}
