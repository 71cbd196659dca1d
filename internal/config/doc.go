// Package config loads and validates application-level configuration.
//
// Application config (TOML) covers the converter binary, upload endpoint and
// retry policy, processing defaults, and logging. Per-project settings such
// as field mappings live in the project's own config.yaml and are handled by
// the project package; stages receive both explicitly and never consult
// ambient globals.
package config
