package pull

import (
	"sort"

	"github.com/mricon/grokmirror-go/internal/manifest"
)

// Plan is the outcome of comparing the local and remote manifests, the
// four buckets spec.md §4.6 step 3 names.
type Plan struct {
	New         []string
	Updated     []string
	Gone        []string
	SymlinkOnly []string
}

// ComputeDelta compares local against remote and classifies every key.
// A fingerprint or modified-time change takes priority over a
// symlink-only change: an entry only lands in SymlinkOnly when nothing
// else about it differs.
func ComputeDelta(local, remote *manifest.Manifest) Plan {
	var plan Plan

	for key, re := range remote.Repos {
		le, ok := local.Repos[key]
		if !ok {
			plan.New = append(plan.New, key)
			continue
		}
		if !manifest.FingerprintEqual(le.Fingerprint, re.Fingerprint, true) || le.Modified != re.Modified {
			plan.Updated = append(plan.Updated, key)
			continue
		}
		if !symlinksEqual(le.Symlinks, re.Symlinks) {
			plan.SymlinkOnly = append(plan.SymlinkOnly, key)
		}
	}
	for key := range local.Repos {
		if _, ok := remote.Repos[key]; !ok {
			plan.Gone = append(plan.Gone, key)
		}
	}

	sort.Strings(plan.New)
	sort.Strings(plan.Updated)
	sort.Strings(plan.Gone)
	sort.Strings(plan.SymlinkOnly)
	return plan
}

func symlinksEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	aa := append([]string(nil), a...)
	bb := append([]string(nil), b...)
	sort.Strings(aa)
	sort.Strings(bb)
	for i := range aa {
		if aa[i] != bb[i] {
			return false
		}
	}
	return true
}
