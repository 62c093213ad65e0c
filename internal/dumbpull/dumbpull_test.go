package dumbpull

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBareGitRepoRequiresAllThreeMarkers(t *testing.T) {
	dir := t.TempDir()
	require.False(t, isBareGitRepo(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "objects"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "refs"), 0755))
	require.False(t, isBareGitRepo(dir), "still missing HEAD")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))
	require.True(t, isBareGitRepo(dir))
}

func TestWalkGitDirsFindsRepoDirectlyAtRoot(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "objects"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "refs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))

	found, err := walkGitDirs(repo)
	require.NoError(t, err)
	require.Equal(t, []string{repo}, found)
}

func TestWalkGitDirsSearchesNestedDirectories(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "group", "proj.git")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "objects"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "refs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))

	found, err := walkGitDirs(root)
	require.NoError(t, err)
	require.Equal(t, []string{repo}, found)
}

func TestExpandPathsDedupsAndRejectsMissingExplicitRepo(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "proj.git")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "objects"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "refs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))

	found, err := expandPaths([]string{root, repo})
	require.NoError(t, err)
	require.Equal(t, []string{repo}, found)

	_, err = expandPaths([]string{filepath.Join(root, "missing.git")})
	require.Error(t, err)
}
