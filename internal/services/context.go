package services

import "context"

type contextKey string

const (
	sampleIDKey contextKey = "cytopipe.sample_id"
	stageKey    contextKey = "cytopipe.stage"
	runIDKey    contextKey = "cytopipe.run_id"
)

// WithSampleID attaches a sample identifier to the context for logging.
func WithSampleID(ctx context.Context, sampleID string) context.Context {
	return context.WithValue(ctx, sampleIDKey, sampleID)
}

// SampleIDFromContext extracts the sample identifier, if any.
func SampleIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(sampleIDKey).(string)
	return value, ok && value != ""
}

// WithStage attaches the active stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the active stage name, if any.
func StageFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(stageKey).(string)
	return value, ok && value != ""
}

// WithRunID attaches the invocation run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the invocation run identifier, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(runIDKey).(string)
	return value, ok && value != ""
}
