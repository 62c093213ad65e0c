package pull

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/manifest"
)

func TestApplySymlinksCreatesAliases(t *testing.T) {
	toplevel := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(toplevel, "real.git"), 0755))

	e := &Engine{Log: zerolog.Nop()}
	entry := &manifest.Entry{Symlinks: []string{"/alias.git"}}

	require.NoError(t, e.applySymlinks(toplevel, "/real.git", entry))

	target, err := os.Readlink(filepath.Join(toplevel, "alias.git"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(toplevel, "real.git"), target)
}

func TestApplySymlinksIsIdempotent(t *testing.T) {
	toplevel := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(toplevel, "real.git"), 0755))

	e := &Engine{Log: zerolog.Nop()}
	entry := &manifest.Entry{Symlinks: []string{"/alias.git"}}

	require.NoError(t, e.applySymlinks(toplevel, "/real.git", entry))
	require.NoError(t, e.applySymlinks(toplevel, "/real.git", entry))

	target, err := os.Readlink(filepath.Join(toplevel, "alias.git"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(toplevel, "real.git"), target)
}
