package manifest

import (
	"context"
	"os"
	"time"
)

// WaitFor implements the "-w wait-for-manifest" mode of spec.md §5:
// concurrent grokmirror processes coordinate via rename-atomicity, so a
// second process that needs the freshly-written manifest spins with
// backoff until the file exists and its size is stable across two polls
// (a renamed-into-place file never changes size again until the next full
// rewrite, so two stable reads are a strong signal the rename completed).
// The wait between polls starts at pollInterval and doubles after each
// poll, capped at maxWaitBackoff (or at pollInterval if that is larger).
func WaitFor(ctx context.Context, path string, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	const maxWaitBackoff = 10 * time.Second
	delay := pollInterval
	var lastSize int64 = -1

	for {
		if fi, err := os.Stat(path); err == nil {
			if lastSize == fi.Size() {
				return nil
			}
			lastSize = fi.Size()
		} else {
			lastSize = -1
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxWaitBackoff {
			delay = min(delay*2, maxWaitBackoff)
		}
	}
}
