package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Converter configures the external cyz2json acquisition file converter.
type Converter struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Upload configures the remote annotation repository client.
type Upload struct {
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	UploadTimeoutSeconds  int    `toml:"upload_timeout_seconds"`
	RetryMaxAttempts      int    `toml:"retry_max_attempts"`
	RetryBaseDelaySeconds int    `toml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int    `toml:"retry_max_delay_seconds"`
	JobPollSeconds        int    `toml:"job_poll_seconds"`
}

// Processing configures pipeline execution defaults.
type Processing struct {
	// Workers bounds per-sample parallelism inside parallel-safe stages.
	// 1 means fully sequential, deterministic execution.
	Workers int `toml:"workers"`
	// PulseCoefficients is the number of polynomial coefficients fitted to
	// each normalised pulse shape (degree = coefficients - 1).
	PulseCoefficients int `toml:"pulse_coefficients"`
	// RegistryFields are the user metadata columns seeded into samples.csv.
	RegistryFields []string `toml:"registry_fields"`
	// MinFreeSpaceGiB aborts conversion when the project volume has less
	// free space than this. 0 disables the check.
	MinFreeSpaceGiB int `toml:"min_free_space_gib"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all application configuration values for cytopipe.
type Config struct {
	Converter  Converter  `toml:"converter"`
	Upload     Upload     `toml:"upload"`
	Processing Processing `toml:"processing"`
	Logging    Logging    `toml:"logging"`
}

// SampleConfig returns the annotated sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/cytopipe/config.toml")
}

// Load locates, parses, and validates a configuration file. When no file
// exists the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cytopipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ConverterTimeout returns the converter run timeout as a duration.
func (c *Config) ConverterTimeout() time.Duration {
	return time.Duration(c.Converter.TimeoutSeconds) * time.Second
}

// ExpandPath resolves ~ prefixes and returns a cleaned absolute path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
