package manifest_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/manifest"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func strPtr(s string) *string { return &s }

func sampleManifest() *manifest.Manifest {
	m := manifest.New("2.0.0")
	fp := "abc123"
	owner := "mricon"
	m.Repos["/a.git"] = &manifest.Entry{
		Description: "project a",
		Head:        "ref: refs/heads/main",
		Modified:    100,
		Fingerprint: &fp,
		Owner:       &owner,
		Symlinks:    []string{"/aliases/a2.git", "/aliases/a1.git"},
	}
	m.Repos["/b.git"] = &manifest.Entry{
		Description: manifest.UnnamedDescription,
		Head:        "ref: refs/heads/master",
		Modified:    50,
	}
	return m
}

// ------------------------------------------------------------
// Round-trip: Parse(Emit(M)) == M for all valid manifests.
// ------------------------------------------------------------
func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, pretty := range []bool{true, false} {
		m := sampleManifest()
		data, err := manifest.Encode(m, manifest.EncodeOptions{Pretty: pretty})
		require.NoError(t, err)

		got, err := manifest.Decode(bytesReader(data))
		require.NoError(t, err)

		require.Equal(t, m.Meta.Version, got.Meta.Version)
		require.Len(t, got.Repos, len(m.Repos))
		for k, e := range m.Repos {
			ge, ok := got.Repos[k]
			require.True(t, ok, "missing key %s", k)
			require.Equal(t, e.Description, ge.Description)
			require.Equal(t, e.Head, ge.Head)
			require.Equal(t, e.Modified, ge.Modified)
			require.ElementsMatch(t, e.Symlinks, ge.Symlinks)
		}
	}
}

func TestEncodeSortsSymlinks(t *testing.T) {
	m := sampleManifest()
	data, err := manifest.Encode(m, manifest.EncodeOptions{})
	require.NoError(t, err)
	require.Contains(t, string(data), `"/aliases/a1.git","/aliases/a2.git"`)
}

func TestEncodeGzipDecodeByMagic(t *testing.T) {
	m := sampleManifest()
	data, err := manifest.Encode(m, manifest.EncodeOptions{Gzip: true})
	require.NoError(t, err)
	require.Equal(t, byte(0x1f), data[0])
	require.Equal(t, byte(0x8b), data[1])

	got, err := manifest.Decode(bytesReader(data))
	require.NoError(t, err)
	require.Len(t, got.Repos, 2)
}

func TestDecodeRejectsNonObjectTopLevel(t *testing.T) {
	_, err := manifest.Decode(bytesReader([]byte(`["not", "an", "object"]`)))
	require.Error(t, err)
}

// ------------------------------------------------------------
// Atomicity: WriteFile always leaves either the old or the new manifest
// fully readable, never a partial file.
// ------------------------------------------------------------
func TestWriteFileAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "manifest.js")

	m1 := sampleManifest()
	require.NoError(t, manifest.WriteFile(target, m1, true))

	got1, err := manifest.ReadFile(target)
	require.NoError(t, err)
	require.Len(t, got1.Repos, 2)

	m2 := sampleManifest()
	delete(m2.Repos, "/b.git")
	require.NoError(t, manifest.WriteFile(target, m2, true))

	got2, err := manifest.ReadFile(target)
	require.NoError(t, err)
	require.Len(t, got2.Repos, 1)

	// no leftover temp files in the directory
	entries, err := filepath.Glob(filepath.Join(dir, "manifest.js.*"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteFileGzipSuffix(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "manifest.js.gz")
	require.NoError(t, manifest.WriteFile(target, sampleManifest(), false))

	got, err := manifest.ReadFile(target)
	require.NoError(t, err)
	require.Len(t, got.Repos, 2)
}
