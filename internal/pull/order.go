package pull

import "github.com/mricon/grokmirror-go/internal/manifest"

// TopoWaves groups keys into dependency waves: every key in wave N can be
// pulled only after the key its entry references (the "reference" field
// used for linked clones) finishes in an earlier wave (spec.md §4.6 step
// 4). A forkgroup value is an opaque objstore guid, not a manifest key, so
// it carries no wave ordering of its own; fork-family siblings can land in
// the same wave and race each other onto the shared objstore, which is why
// objstore.Store guards its create-if-absent calls with a mutex instead.
// Keys with no dependency land in wave 0; waves are dispatched to the
// worker pool in order, all keys within a wave running concurrently.
func TopoWaves(m *manifest.Manifest, keys []string) [][]string {
	depth := map[string]int{}

	var depthOf func(key string, visiting map[string]bool) int
	depthOf = func(key string, visiting map[string]bool) int {
		if d, ok := depth[key]; ok {
			return d
		}
		if visiting[key] {
			return 0 // dependency cycle; treat as no further depth
		}
		visiting[key] = true
		defer delete(visiting, key)

		d := 0
		if e, ok := m.Repos[key]; ok {
			if e.Reference != nil && *e.Reference != "" && *e.Reference != key {
				if _, exists := m.Repos[*e.Reference]; exists {
					if dep := depthOf(*e.Reference, visiting) + 1; dep > d {
						d = dep
					}
				}
			}
		}
		depth[key] = d
		return d
	}

	maxDepth := 0
	for _, k := range keys {
		if d := depthOf(k, map[string]bool{}); d > maxDepth {
			maxDepth = d
		}
	}

	buckets := make([][]string, maxDepth+1)
	for _, k := range keys {
		buckets[depth[k]] = append(buckets[depth[k]], k)
	}

	var waves [][]string
	for _, b := range buckets {
		if len(b) > 0 {
			waves = append(waves, b)
		}
	}
	return waves
}
