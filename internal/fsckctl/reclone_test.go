package fsckctl_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/fsckctl"
)

var defaultRecloneErrors = []string{"fatal: bad object", "missing blob"}

func TestMatchesRecloneErrorFindsSubstring(t *testing.T) {
	pattern, hit := fsckctl.MatchesRecloneError("error: object deadbeef is missing blob data", defaultRecloneErrors)
	require.True(t, hit)
	require.Equal(t, "missing blob", pattern)
}

func TestMatchesRecloneErrorNoHitOnCleanOutput(t *testing.T) {
	_, hit := fsckctl.MatchesRecloneError("Checking object directories: 100% done", defaultRecloneErrors)
	require.False(t, hit)
}

// Scenario 4 (spec.md §8): a fsck failure matching reclone_on_errors marks
// the repo for reclone; the pull engine later clears the mark once it has
// recloned.
func TestRecloneMarkLifecycle(t *testing.T) {
	repo := t.TempDir()

	require.False(t, fsckctl.IsMarkedForReclone(repo))

	require.NoError(t, fsckctl.MarkForReclone(repo, "fatal: bad object deadbeef"))
	require.True(t, fsckctl.IsMarkedForReclone(repo))

	data, err := os.ReadFile(filepath.Join(repo, fsckctl.RecloneMarkName))
	require.NoError(t, err)
	require.Contains(t, string(data), "fatal: bad object deadbeef")

	require.NoError(t, fsckctl.ClearRecloneMark(repo))
	require.False(t, fsckctl.IsMarkedForReclone(repo))

	// clearing twice is not an error
	require.NoError(t, fsckctl.ClearRecloneMark(repo))
}
