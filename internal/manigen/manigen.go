// Package manigen implements the origin-side manifest generator of
// spec.md §4.7: a recursive walk of the toplevel that stops descent at
// repository markers, recording each bare repository's fingerprint, HEAD,
// description, and symlink aliases into a manifest.
package manigen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/manifest"
)

// Options controls one run of the walk.
type Options struct {
	Toplevel string
	Version  string

	// IgnoreGlobs are path-match globs (relative to Toplevel) skipped
	// during the walk, and also the ref-ignore patterns handed to
	// manifest.Fingerprint for every repo found.
	IgnoreGlobs []string
	// CheckExportOk requires a git-daemon-export-ok marker file in each
	// repository, skipping any that lack one.
	CheckExportOk bool
	// NoFingerprint stamps Modified as "now" instead of reading the
	// newest commit time (the "-n" mode).
	NoFingerprint bool
	// ExplicitRemove names manifest keys to drop outright (the "-x" mode).
	ExplicitRemove []string
	// PruneMissing drops any existing entry whose on-disk path no longer
	// exists (the "-p" mode).
	PruneMissing bool
}

// Generate walks opts.Toplevel and folds what it finds into a copy of
// existing (or a fresh manifest, if existing is nil): entries for repos
// still on disk are refreshed, entries for repos the walk never saw are
// otherwise left untouched, matching the original generator's
// incremental-update behavior. ExplicitRemove and PruneMissing then drop
// entries outright.
func Generate(ctx context.Context, git *gitutil.Invoker, opts Options, existing *manifest.Manifest) (*manifest.Manifest, error) {
	m := manifest.New(opts.Version)
	if existing != nil {
		m = existing.Clone()
		m.Meta.Version = opts.Version
	}

	repoPaths, err := walkRepos(opts.Toplevel, opts.IgnoreGlobs)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", opts.Toplevel, err)
	}

	for _, repoPath := range repoPaths {
		if opts.CheckExportOk {
			if _, err := os.Stat(filepath.Join(repoPath, "git-daemon-export-ok")); err != nil {
				continue
			}
		}
		key := keyFor(opts.Toplevel, repoPath)
		entry, err := buildEntry(ctx, git, repoPath, opts)
		if err != nil {
			return nil, fmt.Errorf("building entry for %s: %w", key, err)
		}
		m.Repos[key] = entry
	}

	groupSymlinks(opts.Toplevel, m)

	for _, key := range opts.ExplicitRemove {
		delete(m.Repos, key)
	}
	if opts.PruneMissing {
		for key := range m.Repos {
			repoPath := filepath.Join(opts.Toplevel, strings.TrimPrefix(key, "/"))
			if _, err := os.Stat(repoPath); err != nil {
				delete(m.Repos, key)
			}
		}
	}

	return m, nil
}

// KeyFor exposes the toplevel-relative manifest key for an arbitrary
// on-disk repository path, used by the manifest CLI's "-x" explicit
// removal mode to turn its positional arguments into manifest keys.
func KeyFor(toplevel, repoPath string) string {
	return keyFor(toplevel, repoPath)
}

func keyFor(toplevel, repoPath string) string {
	rel, _ := filepath.Rel(toplevel, repoPath)
	return "/" + filepath.ToSlash(rel)
}

// walkRepos performs the recursive walk: directories are descended
// into unless they are themselves a bare repository (has HEAD and
// objects/), in which case the walk records it and does not look inside.
func walkRepos(toplevel string, ignoreGlobs []string) ([]string, error) {
	var repos []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			path := filepath.Join(dir, ent.Name())
			rel, _ := filepath.Rel(toplevel, path)
			if matchesAnyGlob(rel, ignoreGlobs) {
				continue
			}
			if isBareRepo(path) {
				repos = append(repos, path)
				continue
			}
			if err := walk(path); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(toplevel); err != nil {
		return nil, err
	}
	sort.Strings(repos)
	return repos, nil
}

func isBareRepo(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "HEAD")); err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(path, "objects"))
	return err == nil && info.IsDir()
}

func matchesAnyGlob(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func buildEntry(ctx context.Context, git *gitutil.Invoker, repoPath string, opts Options) (*manifest.Entry, error) {
	refs, err := git.ShowRef(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	fp := manifest.Fingerprint(refs, opts.IgnoreGlobs)

	var modified int64
	if opts.NoFingerprint {
		modified = time.Now().Unix()
	} else {
		modified = newestCommitTime(ctx, git, repoPath, refs)
	}

	head, _ := readHead(repoPath)
	desc := readDescription(repoPath)

	return &manifest.Entry{
		Description: desc,
		Head:        head,
		Modified:    modified,
		Fingerprint: fp,
	}, nil
}

func newestCommitTime(ctx context.Context, git *gitutil.Invoker, repoPath string, refs []gitutil.RefLine) int64 {
	if len(refs) == 0 {
		return time.Now().Unix()
	}
	var newest int64
	for _, r := range refs {
		ts, err := commitTimestamp(ctx, git, repoPath, r.SHA1)
		if err == nil && ts > newest {
			newest = ts
		}
	}
	if newest == 0 {
		return time.Now().Unix()
	}
	return newest
}

func commitTimestamp(ctx context.Context, git *gitutil.Invoker, repoPath, sha1 string) (int64, error) {
	res, err := git.Run(ctx, repoPath, []string{"log", "-1", "--format=%ct", sha1}, nil, nil, gitutil.TimeoutShort)
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("git log -1 --format=%%ct %s failed: %s", sha1, res.Stderr)
	}
	return strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
}

func readHead(repoPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, "HEAD"))
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(data))
	if strings.HasPrefix(line, "ref: ") {
		return strings.TrimPrefix(line, "ref: "), nil
	}
	return line, nil
}

func readDescription(repoPath string) string {
	data, err := os.ReadFile(filepath.Join(repoPath, "description"))
	if err != nil {
		return ""
	}
	desc := strings.TrimSpace(string(data))
	if manifest.DescriptionIsEmpty(desc) {
		return ""
	}
	return desc
}

// groupSymlinks resolves every symlink found under toplevel and, when it
// points at a repository the walk already recorded, adds the symlink's
// own toplevel-relative path to that entry's Symlinks set.
func groupSymlinks(toplevel string, m *manifest.Manifest) {
	for _, entry := range m.Repos {
		entry.Symlinks = nil
	}

	realToEntry := map[string]string{}
	for key := range m.Repos {
		real, err := filepath.EvalSymlinks(filepath.Join(toplevel, strings.TrimPrefix(key, "/")))
		if err != nil {
			continue
		}
		realToEntry[real] = key
	}

	_ = filepath.Walk(toplevel, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		key, ok := realToEntry[real]
		if !ok {
			return nil
		}
		rel, _ := filepath.Rel(toplevel, path)
		alias := "/" + filepath.ToSlash(rel)
		entry := m.Repos[key]
		entry.Symlinks = append(entry.Symlinks, alias)
		return nil
	})

	for _, entry := range m.Repos {
		sort.Strings(entry.Symlinks)
	}
}
