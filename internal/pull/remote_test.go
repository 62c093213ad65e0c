package pull

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

func TestFetchRemoteManifestViaCommandDecodesStdout(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(`{"/manifest/":{"version":"1.0"}}`), 0644))

	m, unchanged, err := fetchRemoteManifestViaCommand(context.Background(), "cat "+manifestPath, false)
	require.NoError(t, err)
	require.False(t, unchanged)
	require.Equal(t, "1.0", m.Meta.Version)
}

func TestFetchRemoteManifestViaCommandTreats127AsUnchanged(t *testing.T) {
	_, unchanged, err := fetchRemoteManifestViaCommand(context.Background(), "/bin/sh -c exit\\ 127", false)
	require.NoError(t, err)
	require.True(t, unchanged)
}

func TestFetchRemoteManifestViaCommandTreatsExit1AsFatal(t *testing.T) {
	_, _, err := fetchRemoteManifestViaCommand(context.Background(), "/bin/sh -c exit\\ 1", false)
	require.ErrorIs(t, err, errkind.ErrManifestFetchFailed)
}

func TestFetchRemoteManifestViaCommandTreatsOtherNonZeroAsSkip(t *testing.T) {
	_, unchanged, err := fetchRemoteManifestViaCommand(context.Background(), "/bin/sh -c exit\\ 42", false)
	require.NoError(t, err)
	require.True(t, unchanged)
}
