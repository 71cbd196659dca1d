// Package project defines the on-disk layout of a cytopipe project and the
// per-project configuration file.
//
// A project maps one directory tree to one remote repository submission.
// Layout resolution is pure path arithmetic; Create is an idempotent merge
// that never destroys existing data. The per-project config.yaml carries the
// user-editable field-mapping dictionaries and the remote project id, and is
// expected to be edited between runs rather than by stages.
package project
