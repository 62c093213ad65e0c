// Package fsckctl implements the fsck/repack controller of spec.md §4.5:
// staggered health checks and adaptive repack decisions based on
// loose-object and pack counts, tracked in a sidecar status file.
package fsckctl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mricon/grokmirror-go/internal/fsutil"
)

// RepoStatus is the per-repository decision state tracked across passes,
// matching the fields named in spec.md §4.5/§6.
type RepoStatus struct {
	LastCheck        time.Time `json:"lastcheck"`
	LastRepack       time.Time `json:"lastrepack"`
	LastFullRepack   time.Time `json:"lastfullrepack"`
	NextCheck        time.Time `json:"nextcheck"`
	SecondsElapsed   float64   `json:"s_elapsed"`
	QuickRepackCount int       `json:"quick_repack_count"`
}

// StatusFile is the JSON mapping from repo path to RepoStatus, persisted
// atomically under the toplevel (spec.md §6 "Fsck status file").
type StatusFile struct {
	path  string
	Repos map[string]*RepoStatus
}

// StatusFilePath returns the conventional sidecar status file path for a
// mirror toplevel.
func StatusFilePath(toplevel string) string {
	return filepath.Join(toplevel, ".grokmirror", "fsck-status.json")
}

// LoadStatus reads the sidecar status file, returning an empty one if it
// does not yet exist (first run).
func LoadStatus(toplevel string) (*StatusFile, error) {
	path := StatusFilePath(toplevel)
	sf := &StatusFile{path: path, Repos: map[string]*RepoStatus{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fsck status file: %w", err)
	}
	if err := json.Unmarshal(data, &sf.Repos); err != nil {
		return nil, fmt.Errorf("parsing fsck status file: %w", err)
	}
	return sf, nil
}

// Save atomically rewrites the status file (spec.md §6 "Atomic rename on
// every update").
func (sf *StatusFile) Save() error {
	data, err := json.MarshalIndent(sf.Repos, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing fsck status file: %w", err)
	}
	return fsutil.AtomicWrite(sf.path, data, 0644)
}

// For returns the status entry for repo, creating a zero-value one if
// this is the first time the repo has been seen.
func (sf *StatusFile) For(repo string) *RepoStatus {
	st, ok := sf.Repos[repo]
	if !ok {
		st = &RepoStatus{}
		sf.Repos[repo] = st
	}
	return st
}
