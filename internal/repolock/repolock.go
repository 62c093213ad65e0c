// Package repolock implements the per-repository advisory lock of
// spec.md §4.2: the pull engine and the fsck controller coordinate through
// it, but bare git operations never see it. Built on github.com/gofrs/flock
// (see DESIGN.md for why no pack example carries a flock-equivalent).
package repolock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

// LockFileName is the primary lock file, sitting inside the bare repo dir.
const LockFileName = ".grokmirror.lock"

// Lock holds an acquired advisory lock on one repository directory.
type Lock struct {
	primary *flock.Flock
	legacy  *flock.Flock
}

// legacyLockPath mirrors the grokmirror 1.x sibling lock file naming:
// ".<basename>.git.lock" next to the repository directory itself.
func legacyLockPath(repoPath string) string {
	dir := filepath.Dir(repoPath)
	base := filepath.Base(repoPath)
	return filepath.Join(dir, "."+base+".lock")
}

// Acquire takes the advisory lock for repoPath. In blocking mode it waits
// (polling at a short interval, bounded by ctx) until the lock is free; in
// non-blocking mode it returns errkind.ErrLockBusy immediately if another
// grokmirror process already holds it.
func Acquire(ctx context.Context, repoPath string, blocking bool) (*Lock, error) {
	primary := flock.New(filepath.Join(repoPath, LockFileName))
	legacy := flock.New(legacyLockPath(repoPath))

	var err error
	if blocking {
		err = lockBlocking(ctx, primary)
	} else {
		var ok bool
		ok, err = primary.TryLock()
		if err == nil && !ok {
			return nil, fmt.Errorf("lock held on %s: %w", repoPath, errkind.ErrLockBusy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring lock on %s: %w", repoPath, err)
	}

	// The legacy sibling lock is best-effort: older grokmirror 1.x clients
	// only ever take it non-blocking, so we never let it block us.
	_, _ = legacy.TryLock()

	return &Lock{primary: primary, legacy: legacy}, nil
}

func lockBlocking(ctx context.Context, fl *flock.Flock) error {
	const pollInterval = 200 * time.Millisecond
	for {
		ok, err := fl.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release frees the lock. It is safe to call more than once; the
// underlying OS-level lock is also released automatically if the process
// dies before Release runs.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	var firstErr error
	if l.legacy != nil {
		if err := l.legacy.Unlock(); err != nil {
			firstErr = err
		}
	}
	if l.primary != nil {
		if err := l.primary.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
