package manigen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBareRepoRequiresHeadAndObjects(t *testing.T) {
	dir := t.TempDir()
	require.False(t, isBareRepo(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))
	require.False(t, isBareRepo(dir), "HEAD alone is not enough")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "objects"), 0755))
	require.True(t, isBareRepo(dir))
}

func TestMatchesAnyGlobHonorsConfiguredIgnores(t *testing.T) {
	require.True(t, matchesAnyGlob("private/secret.git", []string{"private/*"}))
	require.False(t, matchesAnyGlob("public/project.git", []string{"private/*"}))
}

func TestWalkReposStopsDescendingIntoBareRepos(t *testing.T) {
	toplevel := t.TempDir()
	repo := filepath.Join(toplevel, "proj.git")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "objects", "pack"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))

	nested := filepath.Join(toplevel, "group", "other.git")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, "objects"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))

	repos, err := walkRepos(toplevel, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{repo, nested}, repos)
}

func TestReadHeadResolvesSymbolicRef(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/main\n"), 0644))

	head, err := readHead(dir)
	require.NoError(t, err)
	require.Equal(t, "refs/heads/main", head)
}

func TestReadDescriptionTreatsPlaceholderAsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "description"),
		[]byte("Unnamed repository; edit this file 'description' to name it\n"), 0644))

	require.Equal(t, "", readDescription(dir))
}
