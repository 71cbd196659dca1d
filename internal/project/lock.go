package project

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock serializes pipeline runs against one project. Skip/force
// decisions read artifact state, so two concurrent runs could both decide
// to write the same artifact; the lock keeps one writer per project.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the project run lock, failing fast when another
// invocation holds it.
func AcquireRunLock(l Layout) (*RunLock, error) {
	lockPath := filepath.Join(l.Dir(AreaLogs), "run.lock")
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("project %s is locked by another cytopipe run", l.Root())
	}
	return &RunLock{lock: fl}, nil
}

// Release drops the lock. Safe to call on a nil receiver.
func (r *RunLock) Release() error {
	if r == nil || r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}
