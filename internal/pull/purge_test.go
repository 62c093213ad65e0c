package pull

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/config"
	"github.com/mricon/grokmirror-go/internal/errkind"
	"github.com/mricon/grokmirror-go/internal/manifest"
)

func newTestEngine(t *testing.T, purgeQuorum float64, purgeThreshold int, force bool) *Engine {
	return &Engine{
		Cfg: &config.Config{
			Pull: config.Pull{PurgeQuorum: purgeQuorum, PurgeThreshold: purgeThreshold, ForcePurge: force},
		},
		Log: zerolog.Nop(),
	}
}

// Scenario 5 (spec.md §8): 100 local entries, remote drops to 80; with
// purge_quorum=0.05 the purge is refused.
func TestApplyPurgeRefusesLargePurge(t *testing.T) {
	toplevel := t.TempDir()
	local := manifest.New("1.0")
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("/repo%03d.git", i)
		local.Repos[key] = &manifest.Entry{}
	}
	gone := make([]string, 0, 20)
	i := 0
	for key := range local.Repos {
		if i >= 20 {
			break
		}
		gone = append(gone, key)
		i++
	}

	e := newTestEngine(t, 0.05, 1, false)
	_, err := e.applyPurge(context.Background(), toplevel, local, gone)
	require.ErrorIs(t, err, errkind.ErrPurgeRefused)
	require.Equal(t, 100, len(local.Repos), "refused purge leaves the manifest untouched")
}

func TestApplyPurgeDeletesSafeCandidates(t *testing.T) {
	toplevel := t.TempDir()
	repoPath := filepath.Join(toplevel, "gone.git")
	require.NoError(t, os.MkdirAll(repoPath, 0755))

	local := manifest.New("1.0")
	local.Repos["/gone.git"] = &manifest.Entry{}

	e := newTestEngine(t, 0.5, 10, false)
	purged, err := e.applyPurge(context.Background(), toplevel, local, []string{"/gone.git"})
	require.NoError(t, err)
	require.Equal(t, []string{"/gone.git"}, purged)

	_, statErr := os.Stat(repoPath)
	require.True(t, os.IsNotExist(statErr))
	require.NotContains(t, local.Repos, "/gone.git")
}

func TestApplyPurgeForcePurgeOverridesQuorum(t *testing.T) {
	toplevel := t.TempDir()
	local := manifest.New("1.0")
	local.Repos["/a.git"] = &manifest.Entry{}
	local.Repos["/b.git"] = &manifest.Entry{}
	require.NoError(t, os.MkdirAll(filepath.Join(toplevel, "a.git"), 0755))

	e := newTestEngine(t, 0.01, 0, true)
	purged, err := e.applyPurge(context.Background(), toplevel, local, []string{"/a.git"})
	require.NoError(t, err)
	require.Equal(t, []string{"/a.git"}, purged)
}
