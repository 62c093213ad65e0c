package repolock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

func newRepoDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "repo.git")
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func TestAcquireNonBlockingSucceedsThenBusy(t *testing.T) {
	repo := newRepoDir(t)

	lock, err := Acquire(context.Background(), repo, false)
	require.NoError(t, err)
	require.NotNil(t, lock)

	_, err = Acquire(context.Background(), repo, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrLockBusy)

	require.NoError(t, lock.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	repo := newRepoDir(t)

	lock, err := Acquire(context.Background(), repo, false)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestAcquireAfterReleaseSucceeds(t *testing.T) {
	repo := newRepoDir(t)

	first, err := Acquire(context.Background(), repo, false)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(context.Background(), repo, false)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquireBlockingWaitsForRelease(t *testing.T) {
	repo := newRepoDir(t)

	first, err := Acquire(context.Background(), repo, false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		second, err := Acquire(ctx, repo, true)
		if err == nil {
			_ = second.Release()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, first.Release())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("blocking acquire never completed after release")
	}
}
