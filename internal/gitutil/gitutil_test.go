package gitutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEnvIncludesMinimalSetAndGitDir(t *testing.T) {
	env := buildEnv("/repos/foo.git", nil)

	assert.Contains(t, env, "LANG=C")
	assert.Contains(t, env, "LC_ALL=C")
	assert.Contains(t, env, "GIT_DIR=/repos/foo.git")
}

func TestBuildEnvOmitsGitDirWhenRepoPathEmpty(t *testing.T) {
	env := buildEnv("", nil)

	for _, kv := range env {
		assert.NotContains(t, kv, "GIT_DIR=")
	}
}

func TestBuildEnvAppendsOverrides(t *testing.T) {
	env := buildEnv("/repos/foo.git", map[string]string{"GIT_TRACE": "1"})

	assert.Contains(t, env, "GIT_TRACE=1")
}
