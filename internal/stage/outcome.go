package stage

// Outcome classifies the result of invoking one stage for one sample.
type Outcome string

const (
	// OutcomeDone means the stage executed and produced its artifact.
	OutcomeDone Outcome = "done"
	// OutcomeSkipped means the artifact already existed and force was not set.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeBlocked means a required predecessor artifact is absent. It is
	// recoverable by running the missing predecessor, not fatal to the batch.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeFailed means the stage executed and returned an error.
	OutcomeFailed Outcome = "failed"
)
