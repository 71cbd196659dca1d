package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cytopipe/internal/config"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	prevDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd returned error: %v", err)
	}
	if err := os.Chdir(tempHome); err != nil {
		t.Fatalf("Chdir returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prevDir); err != nil {
			t.Fatalf("Chdir back returned error: %v", err)
		}
	})

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Converter.Binary != "cyz2json" {
		t.Fatalf("unexpected converter binary: %q", cfg.Converter.Binary)
	}
	if cfg.Upload.RetryMaxAttempts != 4 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Upload.RetryMaxAttempts)
	}
	if cfg.Processing.Workers != 1 {
		t.Fatalf("expected sequential default, got %d workers", cfg.Processing.Workers)
	}
	if cfg.Processing.PulseCoefficients != 10 {
		t.Fatalf("unexpected pulse coefficients: %d", cfg.Processing.PulseCoefficients)
	}
	if len(cfg.Processing.RegistryFields) == 0 {
		t.Fatal("expected default registry fields")
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[converter]
binary = "  /opt/cyz2json/bin/cyz2json  "

[upload]
base_url = "https://ecotaxa.example.org/api/"
retry_max_attempts = 2

[processing]
workers = 4
registry_fields = ["object_lat", " ", "object_lon"]

[logging]
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Converter.Binary != "/opt/cyz2json/bin/cyz2json" {
		t.Fatalf("binary not trimmed: %q", cfg.Converter.Binary)
	}
	if cfg.Upload.BaseURL != "https://ecotaxa.example.org/api" {
		t.Fatalf("base url not normalized: %q", cfg.Upload.BaseURL)
	}
	if cfg.Upload.RetryMaxAttempts != 2 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Upload.RetryMaxAttempts)
	}
	if cfg.Processing.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Processing.Workers)
	}
	if got := cfg.Processing.RegistryFields; len(got) != 2 || got[0] != "object_lat" || got[1] != "object_lon" {
		t.Fatalf("registry fields not cleaned: %v", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level not lowercased: %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[upload]
base_url = "not a url"

[logging]
format = "xml"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "base_url") || !strings.Contains(err.Error(), "format") {
		t.Fatalf("expected both problems reported, got: %v", err)
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config must load cleanly: %v", err)
	}
	defaults := config.Default()
	if cfg.Converter.Binary != defaults.Converter.Binary {
		t.Fatalf("sample converter drifted from defaults: %+v", cfg.Converter)
	}
	if cfg.Upload != defaults.Upload {
		t.Fatalf("sample upload drifted from defaults: %+v", cfg.Upload)
	}
	if cfg.Processing.PulseCoefficients != defaults.Processing.PulseCoefficients {
		t.Fatalf("sample processing drifted from defaults: %+v", cfg.Processing)
	}
}
