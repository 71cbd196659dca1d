package pipeline

import (
	"fmt"

	"cytopipe/internal/runlog"
	"cytopipe/internal/stage"
)

// Result is the outcome of one (sample, stage) invocation.
type Result struct {
	SampleID string
	Stage    string
	Outcome  stage.Outcome
	Err      error
}

// Report aggregates every (sample, stage) outcome of one invocation.
type Report struct {
	RunID   string
	Results []Result
}

// Counts tallies outcomes per kind.
func (r *Report) Counts() runlog.Counts {
	var counts runlog.Counts
	for _, result := range r.Results {
		switch result.Outcome {
		case stage.OutcomeDone:
			counts.Done++
		case stage.OutcomeSkipped:
			counts.Skipped++
		case stage.OutcomeBlocked:
			counts.Blocked++
		case stage.OutcomeFailed:
			counts.Failed++
		}
	}
	return counts
}

// HasFailures reports whether at least one invocation failed. Only Failed
// outcomes make the overall exit status non-zero; Blocked is recoverable.
func (r *Report) HasFailures() bool {
	for _, result := range r.Results {
		if result.Outcome == stage.OutcomeFailed {
			return true
		}
	}
	return false
}

// Outcome returns the recorded outcome for one (sample, stage) pair.
func (r *Report) Outcome(sampleID, stageName string) (stage.Outcome, bool) {
	for _, result := range r.Results {
		if result.SampleID == sampleID && result.Stage == stageName {
			return result.Outcome, true
		}
	}
	return "", false
}

// Summary renders the aggregate counts as a single log-friendly line.
func (r *Report) Summary() string {
	counts := r.Counts()
	return fmt.Sprintf("done=%d skipped=%d blocked=%d failed=%d",
		counts.Done, counts.Skipped, counts.Blocked, counts.Failed)
}

// Merge appends another report's results, used by composite commands that
// run the orchestrator once per stage.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Results = append(r.Results, other.Results...)
}
