// Package manifest implements the manifest model of spec.md §3: the
// distributed authority on what repositories exist and when they last
// changed, its entry type, and the fingerprint that makes delta
// computation cheap.
package manifest

import "sort"

// MetaKey is the top-level meta-entry carrying the producer's version.
const MetaKey = "/manifest/"

// UnnamedDescription is the default cgit/gitweb placeholder description,
// treated as equivalent to empty everywhere this package compares entries.
const UnnamedDescription = "Unnamed repository; edit this file 'description' to name it"

// Entry is one repository's record in the manifest, keyed by its
// toplevel-relative path (always starting with "/").
type Entry struct {
	Description string   `json:"description,omitempty"`
	Head        string   `json:"head,omitempty"`
	Modified    int64    `json:"modified"`
	Fingerprint *string  `json:"fingerprint"`
	Reference   *string  `json:"reference"`
	ForkGroup   *string  `json:"forkgroup"`
	Symlinks    []string `json:"symlinks,omitempty"`
	Owner       *string  `json:"owner"`
	HookVersion *int     `json:"hookversion,omitempty"`
}

// Meta is the payload of the MetaKey entry.
type Meta struct {
	Version string `json:"version"`
}

// Manifest is the unordered mapping from repository path to entry. The
// /manifest/ meta-entry is carried separately from Repos so that every
// other key can be assumed to be a real repository path.
type Manifest struct {
	Meta  Meta
	Repos map[string]*Entry
}

// New returns an empty manifest stamped with the given producer version.
func New(version string) *Manifest {
	return &Manifest{
		Meta:  Meta{Version: version},
		Repos: make(map[string]*Entry),
	}
}

// DescriptionIsEmpty reports whether a description is the default
// placeholder or genuinely empty.
func DescriptionIsEmpty(d string) bool {
	return d == "" || d == UnnamedDescription
}

// SortedKeys returns the manifest's repository paths in lexicographic
// order, used by pretty-printing and by tests that need deterministic
// iteration.
func (m *Manifest) SortedKeys() []string {
	keys := make([]string, 0, len(m.Repos))
	for k := range m.Repos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the manifest, used by the pull engine to
// build the "new local manifest" snapshot it mutates across a pass
// without disturbing the one currently on disk until it is ready to
// persist.
func (m *Manifest) Clone() *Manifest {
	out := New(m.Meta.Version)
	for k, e := range m.Repos {
		out.Repos[k] = e.Clone()
	}
	return out
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	n := *e
	if e.Fingerprint != nil {
		fp := *e.Fingerprint
		n.Fingerprint = &fp
	}
	if e.Reference != nil {
		r := *e.Reference
		n.Reference = &r
	}
	if e.ForkGroup != nil {
		g := *e.ForkGroup
		n.ForkGroup = &g
	}
	if e.Owner != nil {
		o := *e.Owner
		n.Owner = &o
	}
	if e.HookVersion != nil {
		h := *e.HookVersion
		n.HookVersion = &h
	}
	if e.Symlinks != nil {
		n.Symlinks = append([]string(nil), e.Symlinks...)
	}
	return &n
}

// FingerprintEqual reports whether two fingerprints (either of which may
// be nil) represent the same state. Two nil fingerprints compare equal to
// each other only when treatNilAsAlwaysDiffer is false; the pull engine
// always treats a nil fingerprint as a forced refresh (spec.md §8
// "Manifest entry with null fingerprint: treat as 'force refresh'"), so it
// calls this with treatNilAsAlwaysDiffer=true.
func FingerprintEqual(a, b *string, treatNilAsAlwaysDiffer bool) bool {
	if a == nil || b == nil {
		return !treatNilAsAlwaysDiffer && a == b
	}
	return *a == *b
}
