package pull

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/manifest"
)

func TestTopoWavesOrdersReferencesBeforeDependents(t *testing.T) {
	m := manifest.New("1.0")
	m.Repos["/base.git"] = &manifest.Entry{}
	ref := "/base.git"
	m.Repos["/fork.git"] = &manifest.Entry{Reference: &ref}

	waves := TopoWaves(m, []string{"/fork.git", "/base.git"})

	require.Len(t, waves, 2)
	require.Equal(t, []string{"/base.git"}, waves[0])
	require.Equal(t, []string{"/fork.git"}, waves[1])
}

func TestTopoWavesIndependentKeysShareAWave(t *testing.T) {
	m := manifest.New("1.0")
	m.Repos["/a.git"] = &manifest.Entry{}
	m.Repos["/b.git"] = &manifest.Entry{}

	waves := TopoWaves(m, []string{"/a.git", "/b.git"})

	require.Len(t, waves, 1)
	require.ElementsMatch(t, []string{"/a.git", "/b.git"}, waves[0])
}

func TestTopoWavesHandlesCycleWithoutInfiniteRecursion(t *testing.T) {
	m := manifest.New("1.0")
	refA, refB := "/b.git", "/a.git"
	m.Repos["/a.git"] = &manifest.Entry{Reference: &refA}
	m.Repos["/b.git"] = &manifest.Entry{Reference: &refB}

	waves := TopoWaves(m, []string{"/a.git", "/b.git"})
	require.NotEmpty(t, waves)
}
