package pull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/config"
)

func TestWorkerCountHonorsConfiguredThreads(t *testing.T) {
	e := &Engine{Cfg: &config.Config{Pull: config.Pull{PullThreads: 4}}}
	assert.Equal(t, 4, e.workerCount())
}

func TestWorkerCountDefaultsAndCaps(t *testing.T) {
	e := &Engine{Cfg: &config.Config{Pull: config.Pull{PullThreads: 0}}}
	n := e.workerCount()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 10)
}

func TestKeyForPathJoinsToplevelRelativeSlash(t *testing.T) {
	key, err := keyForPath("/repos", "/repos/pub/foo.git")
	require.NoError(t, err)
	assert.Equal(t, "/pub/foo.git", key)
}

func TestKeyForPathRootRepo(t *testing.T) {
	key, err := keyForPath("/repos", "/repos/foo.git")
	require.NoError(t, err)
	assert.Equal(t, "/foo.git", key)
}
