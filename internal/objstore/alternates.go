package objstore

import (
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

func siblingSHA1(memberPath string) string {
	h := sha1.Sum([]byte(memberPath))
	return fmt.Sprintf("%x", h)
}

// AlternatesFile returns the path to a repository's alternates file.
func AlternatesFile(repoPath string) string {
	return filepath.Join(repoPath, "objects", "info", "alternates")
}

// EnsureFamily creates the objstore repository for a fork family if none
// of its members already has an alternate pointing at one, or returns the
// path of the existing one that a member already references. The
// returned path is always absolute.
func (s *Store) EnsureFamily(ctx context.Context, toplevel string, family Family) (string, error) {
	s.guidMu.Lock()
	defer s.guidMu.Unlock()

	for _, m := range family.Members {
		if existing, ok, err := readAlternate(m.Path); err == nil && ok && isObjstorePath(toplevel, existing) {
			// the alternate names <objstore>/objects; return the repo itself
			return filepath.Dir(existing), nil
		}
	}

	guid := NewGUID()
	obstorePath := PathFor(toplevel, guid)
	if err := os.MkdirAll(filepath.Dir(obstorePath), 0755); err != nil {
		return "", fmt.Errorf("creating objstore parent dir: %w", err)
	}
	if res, err := s.Git.InitBare(ctx, obstorePath); err != nil {
		return "", fmt.Errorf("initializing objstore repo: %w", err)
	} else if res.ExitCode != 0 {
		return "", fmt.Errorf("git init --bare %s failed: %s", obstorePath, res.Stderr)
	}

	if err := s.Git.ConfigSet(ctx, obstorePath, "extensions.preciousObjects", "true"); err != nil {
		return "", fmt.Errorf("setting preciousObjects on objstore: %w", err)
	}
	if err := s.Git.ConfigSet(ctx, obstorePath, "gc.auto", "0"); err != nil {
		return "", fmt.Errorf("disabling gc.auto on objstore: %w", err)
	}
	if err := s.Git.ConfigSet(ctx, obstorePath, "repack.useDeltaIslands", "true"); err != nil {
		return "", fmt.Errorf("enabling delta islands on objstore: %w", err)
	}

	s.Log.Info().Str("objstore", obstorePath).Int("members", len(family.Members)).Msg("created new fork-family objstore")
	return obstorePath, nil
}

// EnsureGUID returns the path of the objstore repository named guid under
// toplevel, creating and configuring it (preciousObjects, gc.auto,
// delta islands) if it does not yet exist. Used by the pull worker when a
// manifest entry's forkgroup already names a specific objstore guid,
// rather than one freshly assigned by fsck's fork-family detection.
func (s *Store) EnsureGUID(ctx context.Context, toplevel, guid string) (string, error) {
	s.guidMu.Lock()
	defer s.guidMu.Unlock()

	obstorePath := PathFor(toplevel, guid)
	if _, err := os.Stat(obstorePath); err == nil {
		return obstorePath, nil
	}

	if err := os.MkdirAll(filepath.Dir(obstorePath), 0755); err != nil {
		return "", fmt.Errorf("creating objstore parent dir: %w", err)
	}
	if res, err := s.Git.InitBare(ctx, obstorePath); err != nil {
		return "", fmt.Errorf("initializing objstore repo: %w", err)
	} else if res.ExitCode != 0 {
		return "", fmt.Errorf("git init --bare %s failed: %s", obstorePath, res.Stderr)
	}
	if err := s.Git.ConfigSet(ctx, obstorePath, "extensions.preciousObjects", "true"); err != nil {
		return "", fmt.Errorf("setting preciousObjects on objstore: %w", err)
	}
	if err := s.Git.ConfigSet(ctx, obstorePath, "gc.auto", "0"); err != nil {
		return "", fmt.Errorf("disabling gc.auto on objstore: %w", err)
	}
	if err := s.Git.ConfigSet(ctx, obstorePath, "repack.useDeltaIslands", "true"); err != nil {
		return "", fmt.Errorf("enabling delta islands on objstore: %w", err)
	}
	return obstorePath, nil
}

// WireMember ensures a remote on the objstore for member and points
// member's alternates file at the objstore, per spec.md §4.4.
func (s *Store) WireMember(ctx context.Context, member, objstorePath string, precious string) error {
	sib := SiblingID(member)

	remotes, err := s.Git.RemoteList(ctx, objstorePath)
	if err != nil {
		return fmt.Errorf("listing objstore remotes: %w", err)
	}
	if !contains(remotes, sib) {
		if err := s.Git.RemoteAdd(ctx, objstorePath, sib, member); err != nil {
			return fmt.Errorf("adding objstore remote for %s: %w", member, err)
		}
	}
	refspec := fmt.Sprintf("+refs/*:refs/virtual/%s/*", sib)
	if err := s.Git.ConfigSet(ctx, objstorePath, "remote."+sib+".fetch", refspec); err != nil {
		return fmt.Errorf("setting fetch refspec for %s: %w", sib, err)
	}
	if err := s.Git.ConfigSet(ctx, objstorePath, "remote."+sib+".tagOpt", "--no-tags"); err != nil {
		return fmt.Errorf("disabling tags for remote %s: %w", sib, err)
	}
	if err := s.Git.ConfigSet(ctx, objstorePath, "fetch.writeCommitGraph", "true"); err != nil {
		return fmt.Errorf("enabling commit-graph writes on objstore: %w", err)
	}

	if err := writeAlternate(member, objstorePath); err != nil {
		return fmt.Errorf("wiring alternates for %s: %w", member, err)
	}
	if err := s.Git.ConfigSet(ctx, member, "gc.auto", "0"); err != nil {
		return fmt.Errorf("disabling gc.auto on member %s: %w", member, err)
	}
	if precious == "yes" || precious == "always" {
		if err := s.SetPreciousObjects(ctx, member, true); err != nil {
			return err
		}
	}
	return nil
}

// FetchMember fetches a member's refs into the objstore via the member's
// configured remote, the porcelain path spec.md §4.4 uses during fsck.
func (s *Store) FetchMember(ctx context.Context, objstorePath, memberPath string) error {
	sib := SiblingID(memberPath)
	res, err := s.Git.Fetch(ctx, objstorePath, sib, nil, false)
	if err != nil {
		return fmt.Errorf("fetching member %s into objstore: %w", memberPath, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git fetch %s in %s failed: %s", sib, objstorePath, res.Stderr)
	}
	return nil
}

// FetchMemberPlumbing copies a member's objects into the objstore by
// hardlinking loose objects and packs directly and diffing ref sets with
// `for-each-ref`/`update-ref --stdin`, instead of running a porcelain
// `git fetch` through object negotiation between two repos that already
// share a filesystem (core.objstore_uses_plumbing, spec.md §4.4/§4.6).
// Bitmap files are skipped since a hardlinked bitmap would describe a pack
// the objstore doesn't have in the same layout.
func (s *Store) FetchMemberPlumbing(ctx context.Context, objstorePath, memberPath string) error {
	sib := SiblingID(memberPath)

	srcObjects := filepath.Join(memberPath, "objects")
	dstObjects := filepath.Join(objstorePath, "objects")
	var toRemove []string
	walkErr := filepath.WalkDir(srcObjects, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "info" && path != srcObjects {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".bitmap") {
			toRemove = append(toRemove, path)
			return nil
		}
		rel, err := filepath.Rel(srcObjects, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstObjects, rel)
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := os.Link(path, dst); err != nil {
			return fmt.Errorf("hardlinking %s: %w", rel, err)
		}
		toRemove = append(toRemove, path)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("hardlinking objects from %s: %w", memberPath, walkErr)
	}

	virtPrefix := "refs/virtual/" + sib + "/"
	srcLines, err := s.Git.ForEachRef(ctx, memberPath, "%(objectname) "+virtPrefix+"%(refname:lstrip=1)", "")
	if err != nil {
		return fmt.Errorf("for-each-ref on %s: %w", memberPath, err)
	}
	dstLines, err := s.Git.ForEachRef(ctx, objstorePath, "%(objectname) %(refname)", "refs/virtual/"+sib)
	if err != nil {
		return fmt.Errorf("for-each-ref on %s: %w", objstorePath, err)
	}

	srcSet := refSetFromLines(srcLines)
	dstSet := refSetFromLines(dstLines)

	mapping := map[string]string{}
	for ref, obj := range srcSet {
		if _, ok := dstSet[ref]; !ok {
			mapping[ref] = obj
		}
	}

	var commands strings.Builder
	for ref, obj := range dstSet {
		if _, ok := srcSet[ref]; !ok {
			if newObj, ok := mapping[ref]; ok {
				fmt.Fprintf(&commands, "update %s %s %s\n", ref, newObj, obj)
				delete(mapping, ref)
			} else {
				fmt.Fprintf(&commands, "delete %s %s\n", ref, obj)
			}
		}
	}
	for ref, obj := range mapping {
		fmt.Fprintf(&commands, "create %s %s\n", ref, obj)
	}

	if commands.Len() > 0 {
		res, err := s.Git.UpdateRefStdin(ctx, objstorePath, commands.String())
		if err != nil {
			return fmt.Errorf("update-ref --stdin in %s: %w", objstorePath, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("update-ref --stdin in %s failed: %s", objstorePath, res.Stderr)
		}
	}

	for _, path := range toRemove {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.Log.Warn().Err(err).Str("path", path).Msg("failed to remove hardlinked source object")
		}
	}
	return nil
}

func refSetFromLines(lines []string) map[string]string {
	set := make(map[string]string, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		set[parts[1]] = parts[0]
	}
	return set
}

// PreciousSentinel is the crash-safety marker written before
// extensions.preciousObjects is disabled for a repack and removed only
// after it is restored (spec.md §9 Open Question 3). A sentinel found at
// the start of a pass means a previous repack was interrupted.
func PreciousSentinel(repoPath string) string {
	return filepath.Join(repoPath, ".grokmirror.repacking")
}

// SetPreciousObjects toggles extensions.preciousObjects on repoPath.
func (s *Store) SetPreciousObjects(ctx context.Context, repoPath string, enabled bool) error {
	val := "false"
	if enabled {
		val = "true"
	}
	return s.Git.ConfigSet(ctx, repoPath, "extensions.preciousObjects", val)
}

// IsPrecious reports whether extensions.preciousObjects is currently set.
func (s *Store) IsPrecious(ctx context.Context, repoPath string) (bool, error) {
	val, ok, err := s.Git.ConfigGet(ctx, repoPath, "extensions.preciousObjects")
	if err != nil {
		return false, err
	}
	return ok && val == "true", nil
}

// MigrateLegacyAlternate migrates a repo whose objects/info/alternates
// points at a non-objstore sibling: it joins or creates an objstore for
// the family, rewires the alternate, and drops the legacy link. On any
// failure the repo is left untouched (spec.md §7 objstore_migration_failed
// "never partially rewrite alternates").
func (s *Store) MigrateLegacyAlternate(ctx context.Context, toplevel, memberPath string, family Family, precious string) error {
	legacy, ok, err := readAlternate(memberPath)
	if err != nil {
		return fmt.Errorf("reading legacy alternate for %s: %w", memberPath, errkind.ErrObjstoreMigrationFailed)
	}
	if !ok {
		return nil
	}
	if isObjstorePath(toplevel, legacy) {
		return nil // already migrated
	}

	obstorePath, err := s.EnsureFamily(ctx, toplevel, family)
	if err != nil {
		return fmt.Errorf("ensuring objstore for migration of %s: %w", memberPath, errkind.ErrObjstoreMigrationFailed)
	}
	if err := s.WireMember(ctx, memberPath, obstorePath, precious); err != nil {
		return fmt.Errorf("rewiring %s onto objstore: %w", memberPath, errkind.ErrObjstoreMigrationFailed)
	}

	s.Log.Info().Str("repo", memberPath).Str("legacy", legacy).Str("objstore", obstorePath).Msg("migrated legacy alternate to objstore")
	return nil
}

// SafeToDelete implements invariant 3 (spec.md §8): candidate may only be
// deleted if no other repo's realpath-resolved alternates chain
// references it.
func SafeToDelete(candidate string, allRepoPaths []string) (bool, error) {
	candidateReal, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		candidateReal = candidate
	}
	for _, other := range allRepoPaths {
		if other == candidate {
			continue
		}
		alt, ok, err := readAlternate(other)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		altReal, err := filepath.EvalSymlinks(filepath.Dir(alt))
		if err != nil {
			altReal = filepath.Dir(alt)
		}
		if altReal == filepath.Join(candidateReal, "objects") || altReal == candidateReal {
			return false, nil
		}
	}
	return true, nil
}

// ObjstoreSafeToDelete reports whether an objstore repository has no
// remaining remotes, making it deletable per spec.md §4.4/§8.
func (s *Store) ObjstoreSafeToDelete(ctx context.Context, objstorePath string) (bool, error) {
	remotes, err := s.Git.RemoteList(ctx, objstorePath)
	if err != nil {
		return false, err
	}
	return len(remotes) == 0, nil
}

func isObjstorePath(toplevel, alternatesTarget string) bool {
	dir := filepath.Dir(alternatesTarget) // .../objstore/<guid>.git/objects -> .../objstore/<guid>.git
	return strings.Contains(filepath.ToSlash(dir), "/objstore/") ||
		strings.HasPrefix(filepath.ToSlash(dir), filepath.ToSlash(filepath.Join(toplevel, "objstore")))
}

func readAlternate(repoPath string) (string, bool, error) {
	data, err := os.ReadFile(AlternatesFile(repoPath))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return "", false, nil
	}
	return line, true, nil
}

func writeAlternate(repoPath, objstorePath string) error {
	target := filepath.Join(objstorePath, "objects")
	abs, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	altFile := AlternatesFile(repoPath)
	if err := os.MkdirAll(filepath.Dir(altFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(altFile, []byte(abs+"\n"), 0644)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
