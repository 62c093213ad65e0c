package manifest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mricon/grokmirror-go/internal/errkind"
	"github.com/mricon/grokmirror-go/internal/fsutil"
)

// gzipMagic is the two-byte gzip header grokmirror sniffs for instead of
// trusting the filename, since a server may serve gzip content over a
// plain ".js" URL.
var gzipMagic = []byte{0x1f, 0x8b}

// wireEntry is the on-the-wire JSON shape of one value in the manifest's
// flat map, which holds the /manifest/ meta key alongside every repo
// entry, matching what the Python producer emits.
type wireEntry struct {
	Description string   `json:"description,omitempty"`
	Head        string   `json:"head,omitempty"`
	Modified    int64    `json:"modified,omitempty"`
	Fingerprint *string  `json:"fingerprint"`
	Reference   *string  `json:"reference"`
	ForkGroup   *string  `json:"forkgroup"`
	Symlinks    []string `json:"symlinks,omitempty"`
	Owner       *string  `json:"owner"`
	HookVersion *int     `json:"hookversion,omitempty"`
	Version     string   `json:"version,omitempty"` // only on the /manifest/ entry
}

// Decode parses a manifest from r, transparently handling gzip
// compression detected by magic bytes rather than by filename. The top
// level must decode to a JSON object; anything else is a parse failure.
func Decode(r io.Reader) (*Manifest, error) {
	buffered, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", errkind.ErrManifestFetchFailed)
	}

	data := buffered
	if len(buffered) >= 2 && bytes.Equal(buffered[:2], gzipMagic) {
		gz, err := gzip.NewReader(bytes.NewReader(buffered))
		if err != nil {
			return nil, fmt.Errorf("opening gzip manifest: %w", errkind.ErrManifestParseFailed)
		}
		defer gz.Close()
		data, err = io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("decompressing manifest: %w", errkind.ErrManifestParseFailed)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest top level is not a JSON object: %w", errkind.ErrManifestParseFailed)
	}

	m := New("")
	for key, rawVal := range raw {
		var we wireEntry
		if err := json.Unmarshal(rawVal, &we); err != nil {
			return nil, fmt.Errorf("decoding entry %q: %w", key, errkind.ErrManifestParseFailed)
		}
		if key == MetaKey {
			m.Meta.Version = we.Version
			continue
		}
		m.Repos[key] = &Entry{
			Description: we.Description,
			Head:        we.Head,
			Modified:    we.Modified,
			Fingerprint: we.Fingerprint,
			Reference:   we.Reference,
			ForkGroup:   we.ForkGroup,
			Symlinks:    we.Symlinks,
			Owner:       we.Owner,
			HookVersion: we.HookVersion,
		}
	}
	return m, nil
}

// EncodeOptions controls how Encode serializes a manifest.
type EncodeOptions struct {
	// Pretty indents output. Compact (the default, the hot path) emits
	// without indentation. Both modes emit keys in sorted order, since
	// encoding/json sorts map keys.
	Pretty bool
	// Gzip compresses the output at a fixed level, driven by the caller
	// noticing a ".gz" target suffix rather than by this flag alone.
	Gzip bool
}

// Encode serializes m according to opts and returns the bytes. Symlinks
// are sorted in both modes, since they are specified as set-valued
// (spec.md §9 Open Question 2) and sorting them is what makes repeated
// encodes of unchanged state byte-identical.
func Encode(m *Manifest, opts EncodeOptions) ([]byte, error) {
	out := make(map[string]wireEntry, len(m.Repos)+1)
	out[MetaKey] = wireEntry{Version: m.Meta.Version}
	for key, e := range m.Repos {
		symlinks := append([]string(nil), e.Symlinks...)
		sort.Strings(symlinks)
		out[key] = wireEntry{
			Description: e.Description,
			Head:        e.Head,
			Modified:    e.Modified,
			Fingerprint: e.Fingerprint,
			Reference:   e.Reference,
			ForkGroup:   e.ForkGroup,
			Symlinks:    symlinks,
			Owner:       e.Owner,
			HookVersion: e.HookVersion,
		}
	}

	var data []byte
	var err error
	if opts.Pretty {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return nil, fmt.Errorf("serializing manifest: %w", err)
	}

	if !opts.Gzip {
		return data, nil
	}

	var buf bytes.Buffer
	gz, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("gzip-compressing manifest: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile serializes m and atomically replaces target, choosing gzip
// output when target ends in ".gz"/".js.gz" and indented output when
// pretty is true. Readers of target always observe either the
// previous manifest or the complete new one (spec.md §8 property 4).
func WriteFile(target string, m *Manifest, pretty bool) error {
	opts := EncodeOptions{
		Pretty: pretty,
		Gzip:   strings.HasSuffix(target, ".gz"),
	}
	data, err := Encode(m, opts)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(target, data, 0644)
}

// ReadFile loads and decodes the manifest at path. A missing file is not
// itself an error kind here; callers that need "absent manifest means
// empty replica" semantics check os.IsNotExist on the returned error.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
