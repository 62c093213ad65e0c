package objstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/objstore"
)

func TestSiblingIDIsStableAndShort(t *testing.T) {
	id1 := objstore.SiblingID("/srv/git/p.git")
	id2 := objstore.SiblingID("/srv/git/p.git")
	id3 := objstore.SiblingID("/srv/git/q.git")

	require.Len(t, id1, 12)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestIslandRegexGroupsEverySibling(t *testing.T) {
	re := objstore.IslandRegex([]string{"aaa111222333", "bbb444555666"})
	require.Contains(t, re, "refs/virtual/aaa111222333/")
	require.Contains(t, re, "refs/virtual/bbb444555666/")
}

// SafeToDelete must refuse deletion while another repo's alternates file
// still references the candidate, and allow it once nothing does
// (spec.md §8 invariant 3).
func TestSafeToDeleteRespectsAlternatesChain(t *testing.T) {
	toplevel := t.TempDir()
	objstoreRepo := filepath.Join(toplevel, "objstore", "abc123.git")
	member := filepath.Join(toplevel, "p.git")

	require.NoError(t, os.MkdirAll(filepath.Join(objstoreRepo, "objects"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(member, "objects", "info"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(member, "objects", "info", "alternates"),
		[]byte(filepath.Join(objstoreRepo, "objects")+"\n"), 0644))

	ok, err := objstore.SafeToDelete(objstoreRepo, []string{member, objstoreRepo})
	require.NoError(t, err)
	require.False(t, ok, "objstore repo still referenced by member alternate")

	require.NoError(t, os.Remove(filepath.Join(member, "objects", "info", "alternates")))

	ok, err = objstore.SafeToDelete(objstoreRepo, []string{member, objstoreRepo})
	require.NoError(t, err)
	require.True(t, ok)
}

// Scenario 3 (spec.md §8): two repos sharing root commit "00...11" form a
// fork family; an unrelated third repo does not join it.
func TestGroupFamiliesDetectsSharedRoot(t *testing.T) {
	members := []objstore.Member{
		{Path: "/top/p.git", RootCommits: []string{"0011"}},
		{Path: "/top/q.git", RootCommits: []string{"0011"}},
		{Path: "/top/r.git", RootCommits: []string{"ffff"}},
	}

	families := objstore.GroupFamilies(members)
	require.Len(t, families, 1)
	require.Equal(t, "0011", families[0].Key)
	require.Len(t, families[0].Members, 2)
}

func TestGroupFamiliesIgnoresSingletons(t *testing.T) {
	members := []objstore.Member{
		{Path: "/top/a.git", RootCommits: []string{"aaaa"}},
		{Path: "/top/b.git", RootCommits: []string{"bbbb"}},
	}
	require.Empty(t, objstore.GroupFamilies(members))
}

func TestGroupFamiliesTransitiveMerge(t *testing.T) {
	// p shares root X with q, q shares root Y with r: all three merge
	// into one family even though p and r share no root directly.
	members := []objstore.Member{
		{Path: "/top/p.git", RootCommits: []string{"X"}},
		{Path: "/top/q.git", RootCommits: []string{"X", "Y"}},
		{Path: "/top/r.git", RootCommits: []string{"Y"}},
	}
	families := objstore.GroupFamilies(members)
	require.Len(t, families, 1)
	require.Len(t, families[0].Members, 3)
}

func TestPathForNamesUnderObjstoreSubdir(t *testing.T) {
	p := objstore.PathFor("/srv/git", "deadbeef1234")
	require.Equal(t, filepath.Join("/srv/git", "objstore", "deadbeef1234.git"), p)
}
