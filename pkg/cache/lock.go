package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
)

// lockFilename is the advisory lock's file name within a cache directory.
const lockFilename = ".rch_cache.lock"

// ErrLockTimeout reports that a shared cache's lock stayed contended past
// the configured timeout.
type ErrLockTimeout struct {
	Path    string
	Timeout time.Duration
}

func (e *ErrLockTimeout) Error() string {
	return fmt.Sprintf("lock timeout after %s: %s", e.Timeout, e.Path)
}

const lockPollInterval = 50 * time.Millisecond
const lockWarnAfter = 500 * time.Millisecond

// Lock is an advisory, cross-process exclusive lock on a cache directory,
// held until Release is called.
type Lock struct {
	path string
	file lockfile.Lockfile
}

// AcquireLock creates dir if needed and blocks (polling) until the
// exclusive lock on it is obtained or timeout elapses.
func AcquireLock(dir string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(dir, lockFilename)
	lf, err := lockfile.New(lockPath)
	if err != nil {
		return nil, fmt.Errorf("constructing lockfile %s: %w", lockPath, err)
	}

	start := time.Now()
	warned := false
	for {
		err := lf.TryLock()
		if err == nil {
			if warned {
				log.Printf("lock acquired after %.1fs contention: %s", time.Since(start).Seconds(), lockPath)
			}
			return &Lock{path: lockPath, file: lf}, nil
		}
		if !errors.Is(err, lockfile.ErrBusy) && !errors.Is(err, lockfile.ErrNotExist) {
			return nil, fmt.Errorf("locking %s: %w", lockPath, err)
		}

		if !warned && time.Since(start) > lockWarnAfter {
			log.Printf("WARNING: lock contention on %s, waiting...", lockPath)
			warned = true
		}

		if time.Since(start) >= timeout {
			return nil, &ErrLockTimeout{Path: lockPath, Timeout: timeout}
		}
		time.Sleep(lockPollInterval)
	}
}

// TryAcquireLock attempts the lock exactly once, with no polling. Used by
// the garbage collector to test whether a cache entry is currently in use.
func TryAcquireLock(dir string) (*Lock, error) {
	lockPath := filepath.Join(dir, lockFilename)
	lf, err := lockfile.New(lockPath)
	if err != nil {
		return nil, err
	}
	if err := lf.TryLock(); err != nil {
		return nil, err
	}
	return &Lock{path: lockPath, file: lf}, nil
}

// Path returns the lock file's path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. Releasing twice is a no-op error from the
// underlying package, swallowed here since callers treat Release as
// idempotent cleanup.
func (l *Lock) Release() {
	_ = l.file.Unlock()
}
