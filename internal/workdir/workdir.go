// Package workdir implements spec.md §6's "Temporary storage": a
// supervisor-owned scratch directory created fresh per run, following the
// /tmp/<prefix>-XXXXXX template, held for the run's lifetime behind an
// advisory lock and removed on exit.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
)

// WorkDir is the per-run scratch directory and its advisory lock. Exactly
// one is constructed per Executor, per spec.md §9's "one Config, one
// Logger, one WorkDir" discipline.
type WorkDir struct {
	path string
	lock *flock.Flock
}

// Create makes a fresh directory under os.TempDir() named
// "<prefix>-XXXXXX" (the last six characters random, mirroring the
// mktemp template the original implementation uses), and takes an
// exclusive advisory lock on a lockfile inside it. Directory creation is
// retried with backoff on transient EEXIST collisions from the random
// suffix, since unlike mktemp the Go standard library has no built-in
// retry loop for this.
func Create(prefix string) (*WorkDir, error) {
	var path string
	mkdir := func() error {
		candidate := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", prefix, randomSuffix()))
		if err := os.Mkdir(candidate, 0o700); err != nil {
			return err
		}
		path = candidate
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(mkdir, policy); err != nil {
		return nil, fmt.Errorf("workdir: creating temporary directory: %w", err)
	}

	lockPath := filepath.Join(path, ".lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		os.RemoveAll(path)
		return nil, fmt.Errorf("workdir: acquiring lock: %w", err)
	}
	if !locked {
		os.RemoveAll(path)
		return nil, fmt.Errorf("workdir: lock at %s is already held", lockPath)
	}

	return &WorkDir{path: path, lock: lock}, nil
}

// Path returns the directory's filesystem path.
func (w *WorkDir) Path() string { return w.path }

// Close releases the lock and removes the directory. Safe to call from
// on_post_execute or a fatal-error unwind path.
func (w *WorkDir) Close() error {
	if w.lock != nil {
		_ = w.lock.Unlock()
	}
	return os.RemoveAll(w.path)
}

func randomSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 6)
	seed := uint64(time.Now().UnixNano()) ^ uint64(os.Getpid())
	for i := range buf {
		seed = seed*6364136223846793005 + 1442695040888963407
		buf[i] = alphabet[(seed>>33)%uint64(len(alphabet))]
	}
	return string(buf)
}
