package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "", NormalizePath(""))
	assert.Equal(t, "/a/b", NormalizePath("/a/b/"))
}

func TestAtomicWriteCreatesFileWithContents(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "manifest.json")

	require.NoError(t, AtomicWrite(target, []byte(`{"ok":true}`), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestAtomicWriteOverwritesExistingFileAtomically(t *testing.T) {
	target := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, AtomicWrite(target, []byte("first"), 0644))
	require.NoError(t, AtomicWrite(target, []byte("second"), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp files after rename")
}

func TestExistsAndIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, Exists(dir))
	assert.True(t, IsDir(dir))
	assert.True(t, Exists(file))
	assert.False(t, IsDir(file))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
