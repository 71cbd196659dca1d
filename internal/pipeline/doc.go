// Package pipeline sequences stages over the selected sample set.
//
// The orchestrator owns the uniform skip/force policy, dependency
// blocking, and failure isolation: one sample's failure never aborts the
// batch, it only blocks that sample's downstream stages. Samples are
// processed in registry order; parallelism across samples is an opt-in
// performance knob that never changes outcomes because no stage reads
// another sample's artifacts.
package pipeline
