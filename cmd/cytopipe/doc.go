// Command cytopipe processes flow-cytometry acquisition projects: it
// registers raw .cyz files, runs the extraction stages that turn them into
// per-particle datasets, packages the results, and submits them to an
// EcoTaxa-compatible annotation repository.
package main
