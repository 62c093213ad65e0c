package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "grokmirror.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "[core]\ntoplevel = /repos\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/repos", cfg.Core.Toplevel)
	assert.Equal(t, 300, cfg.Pull.Refresh)
	assert.Equal(t, 0.05, cfg.Pull.PurgeQuorum)
	assert.Equal(t, "yes", cfg.Fsck.Precious)
	assert.Contains(t, cfg.Fsck.RecloneOnErrors, "fatal: bad object")
}

func TestLoadRequiresToplevel(t *testing.T) {
	path := writeConfig(t, "[core]\nlog = /var/log/grokmirror.log\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrConfigInvalid)
}

func TestLoadRejectsBadPurgeQuorum(t *testing.T) {
	path := writeConfig(t, "[core]\ntoplevel = /repos\n[pull]\npurge_quorum = 1.5\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrConfigInvalid)
}

func TestLoadSurfacesUnknownKeysAndSections(t *testing.T) {
	path := writeConfig(t, "[core]\ntoplevel = /repos\nbogus_key = 1\n[madeup]\nfoo = bar\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.UnknownKeys, "core.bogus_key")
	assert.Contains(t, cfg.UnknownKeys, "section:madeup")
}

func TestLoadParsesRemoteManifestCommand(t *testing.T) {
	path := writeConfig(t, "[core]\ntoplevel = /repos\n[remote]\nmanifest_command = ssh origin cat manifest.js\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ssh origin cat manifest.js", cfg.Remote.ManifestCommand)
}

func TestLoadSplitsIgnoreGlobs(t *testing.T) {
	path := writeConfig(t, "[core]\ntoplevel = /repos\nignore = *.tmp *.lock\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.tmp", "*.lock"}, cfg.Core.IgnoreGlobs)
}

func TestLoadOverridesRecloneOnErrors(t *testing.T) {
	path := writeConfig(t, "[core]\ntoplevel = /repos\n[fsck]\nreclone_on_errors = `custom error one\ncustom error two`\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom error one", "custom error two"}, cfg.Fsck.RecloneOnErrors)
}
