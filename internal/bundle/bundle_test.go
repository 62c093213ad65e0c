package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/manifest"
)

func TestMatchesIncludeAcceptsLeadingSlashEitherWay(t *testing.T) {
	require.True(t, matchesInclude("/project/repo.git", []string{"project/*"}))
	require.True(t, matchesInclude("/project/repo.git", []string{"/project/*"}))
	require.False(t, matchesInclude("/other/repo.git", []string{"/project/*"}))
}

func TestMatchesIncludeDefaultsToAllWhenEmpty(t *testing.T) {
	require.True(t, matchesInclude("/anything.git", nil))
}

func TestFingerprintOfHandlesNilEntryAndFingerprint(t *testing.T) {
	require.Equal(t, "", fingerprintOf(nil))
	require.Equal(t, "", fingerprintOf(&manifest.Entry{}))
	fp := "abc123"
	require.Equal(t, "abc123", fingerprintOf(&manifest.Entry{Fingerprint: &fp}))
}

func TestAlternateRepoRootReadsSiblingFromAlternatesFile(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "member.git")
	altRepo := filepath.Join(dir, "objstore", "guid.git")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "objects", "info"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(altRepo, "objects"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(repo, "objects", "info", "alternates"),
		[]byte(filepath.Join(altRepo, "objects")+"\n"), 0644))

	root, ok, err := alternateRepoRoot(repo)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, altRepo, root)
}

func TestAlternateRepoRootReportsAbsentForPlainRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "objects", "info"), 0755))

	_, ok, err := alternateRepoRoot(dir)
	require.NoError(t, err)
	require.False(t, ok)
}
