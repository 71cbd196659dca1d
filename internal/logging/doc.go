// Package logging assembles the structured slog loggers used across
// cytopipe commands and stages.
//
// It owns the console and JSON handlers, the per-day append-only project
// log files, and context-aware helpers so stage code automatically tags
// log lines with sample identifiers, stage names, and run IDs. Prefer
// these constructors over hand-rolled slog setup so every component emits
// data with the same shape.
package logging
