// Package objstore implements the object-sharing subsystem of spec.md
// §4.4: detection of fork families by root-commit identity, creation of
// shared repositories, refs virtualization, alternates wiring, and safe
// migration of preexisting alternates.
package objstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mricon/grokmirror-go/internal/gitutil"
)

// Member is one repository considered for fork-family membership.
type Member struct {
	// Path is the absolute path of the member's bare repository.
	Path string
	// RootCommits are the member's root commits, from `git rev-list
	// --max-parents=0 --all`.
	RootCommits []string
}

// Family is a fork family: a set of repositories sharing at least one
// root commit, keyed by the lexicographically smallest root commit across
// all members (spec.md §4.4).
type Family struct {
	Key     string
	Members []Member
}

// SiblingID is the short identifier the objstore uses to name each
// member's remote and virtual ref namespace: the first 12 hex characters
// of sha1(member path), matching spec.md §3/§4.4's "sibling-sha1"
// convention.
func SiblingID(memberPath string) string {
	return siblingSHA1(memberPath)[:12]
}

// Store wires the git invoker and logger through every objstore
// operation, following Design Note "Global mutable state → injected
// context".
type Store struct {
	Git *gitutil.Invoker
	Log zerolog.Logger

	// guidMu serializes EnsureFamily/EnsureGUID's create-if-absent logic.
	// Concurrent pull workers can target the same fork-family guid from
	// separate goroutines (spec.md §5); without this, two "git init --bare"
	// and config-write sequences race on the same objstore directory.
	guidMu sync.Mutex
}

// New returns a Store bound to the given invoker and logger.
func New(git *gitutil.Invoker, log zerolog.Logger) *Store {
	return &Store{Git: git, Log: log}
}

// DetectForkFamilies groups candidate repositories into fork families by
// root-commit identity: equivalence classes keyed by the
// lexicographically smallest root commit seen across every candidate.
// Any class of size >= 2 is a fork family; singleton classes are dropped.
func (s *Store) DetectForkFamilies(ctx context.Context, candidates []string) ([]Family, error) {
	members := make([]Member, 0, len(candidates))
	for _, path := range candidates {
		roots, err := s.Git.RootCommits(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("listing root commits for %s: %w", path, err)
		}
		if len(roots) == 0 {
			continue // empty repository, nothing to fork-detect
		}
		members = append(members, Member{Path: path, RootCommits: roots})
	}
	return GroupFamilies(members), nil
}

// GroupFamilies groups members into fork families by root-commit
// identity (equivalence classes keyed by the lexicographically smallest
// root commit). Any class of size >= 2 is a fork family; singletons are
// dropped. Split out from DetectForkFamilies so the grouping algorithm is
// testable without shelling out to git.
func GroupFamilies(members []Member) []Family {
	// union-find over root commits, then group members by their
	// representative's smallest root.
	parent := map[string]string{}
	find := func(x string) string {
		for parent[x] != x && parent[x] != "" {
			x = parent[x]
		}
		return x
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra == "" {
			ra = a
		}
		if rb == "" {
			rb = b
		}
		if ra == rb {
			return
		}
		// keep the lexicographically smaller root as representative
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for _, m := range members {
		for _, r := range m.RootCommits {
			if _, ok := parent[r]; !ok {
				parent[r] = r
			}
		}
		for i := 1; i < len(m.RootCommits); i++ {
			union(m.RootCommits[0], m.RootCommits[i])
		}
	}
	// cross-member unions: any two members sharing a root commit merge.
	ownerOfRoot := map[string]string{}
	for _, m := range members {
		for _, r := range m.RootCommits {
			if first, ok := ownerOfRoot[r]; ok {
				union(first, r)
			} else {
				ownerOfRoot[r] = r
			}
		}
	}

	byRep := map[string][]Member{}
	for _, m := range members {
		rep := find(m.RootCommits[0])
		for _, r := range m.RootCommits[1:] {
			rr := find(r)
			if rr < rep {
				rep = rr
			}
		}
		byRep[rep] = append(byRep[rep], m)
	}

	var families []Family
	for rep, mem := range byRep {
		if len(mem) < 2 {
			continue
		}
		sort.Slice(mem, func(i, j int) bool { return mem[i].Path < mem[j].Path })
		families = append(families, Family{Key: rep, Members: mem})
	}
	sort.Slice(families, func(i, j int) bool { return families[i].Key < families[j].Key })
	return families
}

// NewGUID returns a random 12-hex-character objstore directory identifier
// (spec.md §4.4 "guid is a random 12-hex string"), derived from a UUID so
// it draws on the same collision-resistant source the rest of the
// ecosystem uses instead of a hand-rolled random-hex generator.
func NewGUID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:6])
}

// PathFor returns the absolute path of the objstore repository with the
// given guid under toplevel.
func PathFor(toplevel, guid string) string {
	return filepath.Join(toplevel, "objstore", guid+".git")
}
