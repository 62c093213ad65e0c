package manifest

import (
	"crypto/sha1"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/mricon/grokmirror-go/internal/gitutil"
)

// Fingerprint computes the SHA-1 fingerprint of a ref set as defined in
// spec.md §3: the SHA-1 over the sorted "<sha1> <refname>\n" lines
// produced by `git show-ref`, after refs matching ignore are removed. An
// empty resulting ref set has a nil fingerprint.
//
// Stability: the result does not depend on the input order of refs (we
// sort), and adding or removing a ref that matches an ignore pattern
// never changes it (spec.md §8 "Round-trip / idempotence").
func Fingerprint(refs []gitutil.RefLine, ignore []string) *string {
	lines := make([]string, 0, len(refs))
	for _, r := range refs {
		if matchesAny(r.Ref, ignore) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s\n", r.SHA1, r.Ref))
	}
	if len(lines) == 0 {
		return nil
	}
	sort.Strings(lines)

	h := sha1.New()
	for _, l := range lines {
		h.Write([]byte(l))
	}
	sum := fmt.Sprintf("%x", h.Sum(nil))
	return &sum
}

// MatchesAny exposes the fnmatch matcher for callers outside this package
// that need the same semantics against non-ref strings, e.g. the bundle
// generator's repository-name include list.
func MatchesAny(value string, patterns []string) bool {
	return matchesAny(value, patterns)
}

// matchesAny reimplements Python's fnmatch.fnmatch semantics (used by the
// original grokmirror to filter ignored refs): "*" matches any number of
// characters and "?" exactly one, both including "/", unlike Go's
// path/filepath glob. Bracket classes such as "[abc]" are not supported;
// brackets match themselves literally.
func matchesAny(ref string, patterns []string) bool {
	for _, p := range patterns {
		if fnmatchRegexp(p).MatchString(ref) {
			return true
		}
	}
	return false
}

var (
	fnmatchMu    sync.Mutex
	fnmatchCache = map[string]*regexp.Regexp{}
)

func fnmatchRegexp(pattern string) *regexp.Regexp {
	fnmatchMu.Lock()
	defer fnmatchMu.Unlock()

	if re, ok := fnmatchCache[pattern]; ok {
		return re
	}
	var b []byte
	b = append(b, '^')
	for _, c := range pattern {
		switch c {
		case '*':
			b = append(b, '.', '*')
		case '?':
			b = append(b, '.')
		default:
			b = append(b, []byte(regexp.QuoteMeta(string(c)))...)
		}
	}
	b = append(b, '$')
	re := regexp.MustCompile(string(b))
	fnmatchCache[pattern] = re
	return re
}
