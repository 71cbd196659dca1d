package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"cytopipe/internal/project"
	"cytopipe/internal/services"
	"cytopipe/internal/services/cyz2json"
)

// statfs is replaced in tests.
var statfs = unix.Statfs

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunConvertChecks executes the checks that must pass before conversion
// starts: project directory access, free space on the project volume, and
// converter binary availability. A failure here is a setup problem, not a
// per-sample outcome.
func RunConvertChecks(layout project.Layout, converter cyz2json.Client, minFreeGiB int) []Result {
	return []Result{
		CheckDirectoryAccess("Project directory", layout.Root()),
		CheckFreeSpace("Free space", layout.Root(), minFreeGiB),
		CheckConverter(converter),
	}
}

// CheckDirectoryAccess verifies the directory exists and the current user
// has read/write/traverse permission on it.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s does not exist", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("stat %s: %v", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a directory", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("insufficient permissions on %s: %v", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckFreeSpace verifies the filesystem holding path has at least
// minFreeGiB gibibytes available. A non-positive minimum disables the check.
func CheckFreeSpace(name, path string, minFreeGiB int) Result {
	if minFreeGiB <= 0 {
		return Result{Name: name, Passed: true, Detail: "check disabled"}
	}
	var stat unix.Statfs_t
	if err := statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	freeGiB := float64(stat.Bavail) * float64(stat.Bsize) / (1 << 30)
	if freeGiB < float64(minFreeGiB) {
		return Result{Name: name, Detail: fmt.Sprintf("%.1f GiB free, %d GiB required", freeGiB, minFreeGiB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%.1f GiB free", freeGiB)}
}

// CheckConverter verifies the cyz2json binary resolves on PATH.
func CheckConverter(converter cyz2json.Client) Result {
	const name = "Converter"
	if err := converter.Available(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "cyz2json found"}
}

// FirstFailure reduces results to a single configuration error, or nil when
// every check passed.
func FirstFailure(results []Result) error {
	for _, result := range results {
		if !result.Passed {
			return services.Wrap(services.ErrConfiguration, "preflight", result.Name, result.Detail, nil)
		}
	}
	return nil
}
