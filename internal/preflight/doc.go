// Package preflight provides readiness checks for the filesystem and
// external tools a pipeline run depends on.
//
// The convert command runs RunConvertChecks before touching any sample:
// converting hundreds of raw files with a full disk or a missing binary
// would fail every sample the slow way, so these failures abort the run
// up front instead of being recorded as per-sample outcomes.
package preflight
