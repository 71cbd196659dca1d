// Package services defines the error taxonomy shared by pipeline stages and
// hosts clients for external collaborators (the cyz2json converter and the
// EcoTaxa annotation repository).
//
// Stage code wraps failures with services.Wrap so the orchestrator can
// classify them: configuration and validation problems abort the invocation
// before work starts, while per-sample stage errors become Failed outcomes
// without stopping the batch.
package services
