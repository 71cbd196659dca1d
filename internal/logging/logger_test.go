package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatal(err)
	}

	logger.With(String(FieldComponent, "convert")).Info("stage started", String(FieldSampleID, "a"))

	line := buf.String()
	if !strings.Contains(line, "INFO") {
		t.Fatalf("missing level: %q", line)
	}
	if !strings.Contains(line, "[convert]") {
		t.Fatalf("missing component: %q", line)
	}
	if !strings.Contains(line, "sample_id=a") {
		t.Fatalf("missing attr: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("quiet")
	logger.Warn("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestOpenDailyLogAppends(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	file, path, err := OpenDailyLog(dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString("first\n"); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	if filepath.Base(path) != "cytopipe-2026-03-14.log" {
		t.Fatalf("unexpected log name: %s", path)
	}

	file, _, err = OpenDailyLog(dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString("second\n"); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Fatalf("expected append-only behaviour, got %q", data)
	}
}
