package fsckctl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/fsckctl"
)

func TestLoadStatusReturnsEmptyWhenAbsent(t *testing.T) {
	toplevel := t.TempDir()

	sf, err := fsckctl.LoadStatus(toplevel)
	require.NoError(t, err)
	require.Empty(t, sf.Repos)
}

func TestStatusForCreatesAndPersistsEntries(t *testing.T) {
	toplevel := t.TempDir()

	sf, err := fsckctl.LoadStatus(toplevel)
	require.NoError(t, err)

	st := sf.For("/top/p.git")
	st.LastCheck = time.Now().Truncate(time.Second)
	st.QuickRepackCount = 3

	require.NoError(t, sf.Save())

	reloaded, err := fsckctl.LoadStatus(toplevel)
	require.NoError(t, err)
	require.Contains(t, reloaded.Repos, "/top/p.git")
	require.Equal(t, 3, reloaded.Repos["/top/p.git"].QuickRepackCount)
}

func TestStatusForIsIdempotentPerRepo(t *testing.T) {
	sf, err := fsckctl.LoadStatus(t.TempDir())
	require.NoError(t, err)

	a := sf.For("/top/p.git")
	a.QuickRepackCount = 5
	b := sf.For("/top/p.git")

	require.Same(t, a, b)
	require.Equal(t, 5, b.QuickRepackCount)
}
