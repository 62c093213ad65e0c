package gitutil

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Default timeouts per spec.md §5. Callers may override per call.
const (
	TimeoutClone      = 2 * 30 * time.Minute
	TimeoutFetch      = 10 * time.Minute
	TimeoutFullRepack = 4 * time.Hour
	TimeoutShort      = 2 * time.Minute
)

// RefLine is one line of `git show-ref` output: a commit sha1 and a
// refname, e.g. "deadbeef... refs/heads/main".
type RefLine struct {
	SHA1 string
	Ref  string
}

// ShowRef lists every ref in repoPath via plumbing, used by the manifest
// codec to compute fingerprints and by objstore fork detection.
func (inv *Invoker) ShowRef(ctx context.Context, repoPath string) ([]RefLine, error) {
	res, err := inv.Run(ctx, repoPath, []string{"show-ref"}, nil, nil, TimeoutShort)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		// An empty ref set exits 1 with no output; that's not a failure.
		if strings.TrimSpace(res.Stdout) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("git show-ref failed: %s", res.Stderr)
	}
	var lines []RefLine
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if l == "" {
			continue
		}
		parts := strings.SplitN(l, " ", 2)
		if len(parts) != 2 {
			continue
		}
		lines = append(lines, RefLine{SHA1: parts[0], Ref: parts[1]})
	}
	return lines, nil
}

// RevParse resolves rev to a commit sha1 (or any other object the
// revision names).
func (inv *Invoker) RevParse(ctx context.Context, repoPath, rev string) (string, error) {
	res, err := inv.Run(ctx, repoPath, []string{"rev-parse", rev}, nil, nil, TimeoutShort)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git rev-parse %s failed: %s", rev, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// RootCommits returns every root commit (commits with no parents)
// reachable from any ref, used by objstore fork detection (spec.md §4.4).
func (inv *Invoker) RootCommits(ctx context.Context, repoPath string) ([]string, error) {
	res, err := inv.Run(ctx, repoPath, []string{"rev-list", "--max-parents=0", "--all"}, nil, nil, TimeoutShort)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git rev-list --max-parents=0 failed: %s", strings.TrimSpace(res.Stderr))
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ConfigGet reads a single git config value; ok is false when unset.
func (inv *Invoker) ConfigGet(ctx context.Context, repoPath, key string) (value string, ok bool, err error) {
	res, err := inv.Run(ctx, repoPath, []string{"config", "--get", key}, nil, nil, TimeoutShort)
	if err != nil {
		return "", false, err
	}
	if res.ExitCode != 0 {
		return "", false, nil
	}
	return strings.TrimSpace(res.Stdout), true, nil
}

// ConfigSet sets a single git config value.
func (inv *Invoker) ConfigSet(ctx context.Context, repoPath, key, value string) error {
	res, err := inv.Run(ctx, repoPath, []string{"config", key, value}, nil, nil, TimeoutShort)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git config %s %s failed: %s", key, value, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ConfigUnset removes a git config key if present, ignoring a "not set" exit.
func (inv *Invoker) ConfigUnset(ctx context.Context, repoPath, key string) error {
	res, err := inv.Run(ctx, repoPath, []string{"config", "--unset", key}, nil, nil, TimeoutShort)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && res.ExitCode != 5 {
		return fmt.Errorf("git config --unset %s failed: %s", key, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ConfigAdd adds a value to a multi-valued git config key (e.g. remote.*.fetch).
func (inv *Invoker) ConfigAdd(ctx context.Context, repoPath, key, value string) error {
	res, err := inv.Run(ctx, repoPath, []string{"config", "--add", key, value}, nil, nil, TimeoutShort)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git config --add %s %s failed: %s", key, value, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Clone performs `git clone --mirror --bare <url> <dest>`.
func (inv *Invoker) Clone(ctx context.Context, url, dest string) (Result, error) {
	return inv.Run(ctx, "", []string{"clone", "--mirror", "--bare", url, dest}, nil, nil, TimeoutClone)
}

// Fetch runs `git fetch` against remote with the given refspecs, mirroring
// the refspec forcing the pull worker needs for the mirror case.
func (inv *Invoker) Fetch(ctx context.Context, repoPath, remote string, refspecs []string, prune bool) (Result, error) {
	args := []string{"fetch"}
	if prune {
		args = append(args, "--prune", "--prune-tags")
	}
	args = append(args, remote)
	args = append(args, refspecs...)
	return inv.Run(ctx, repoPath, args, nil, nil, TimeoutFetch)
}

// PackRefs runs `git pack-refs --all`.
func (inv *Invoker) PackRefs(ctx context.Context, repoPath string) (Result, error) {
	return inv.Run(ctx, repoPath, []string{"pack-refs", "--all"}, nil, nil, TimeoutShort)
}

// Repack runs `git repack` with the given flags, using the full-repack
// timeout since flags determine whether this is actually a full repack.
func (inv *Invoker) Repack(ctx context.Context, repoPath string, flags []string) (Result, error) {
	args := append([]string{"repack"}, flags...)
	return inv.Run(ctx, repoPath, args, nil, nil, TimeoutFullRepack)
}

// PruneExpire runs `git prune --expire=<expire>`.
func (inv *Invoker) PruneExpire(ctx context.Context, repoPath, expire string) (Result, error) {
	return inv.Run(ctx, repoPath, []string{"prune", "--expire=" + expire}, nil, nil, TimeoutFetch)
}

// Fsck runs `git fsck` with the given flags.
func (inv *Invoker) Fsck(ctx context.Context, repoPath string, flags []string) (Result, error) {
	args := append([]string{"fsck"}, flags...)
	return inv.Run(ctx, repoPath, args, nil, nil, TimeoutFullRepack)
}

// ForEachRef runs `git for-each-ref --format=<format> [pattern]`, returning
// its trimmed output lines. Used by the objstore plumbing fetch to diff ref
// sets between a member and its objstore's virtual namespace.
func (inv *Invoker) ForEachRef(ctx context.Context, repoPath, format string, pattern string) ([]string, error) {
	args := []string{"for-each-ref", "--format=" + format}
	if pattern != "" {
		args = append(args, pattern)
	}
	res, err := inv.Run(ctx, repoPath, args, nil, nil, TimeoutShort)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git for-each-ref failed: %s", strings.TrimSpace(res.Stderr))
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// UpdateRefStdin feeds commands to `git update-ref --stdin`.
func (inv *Invoker) UpdateRefStdin(ctx context.Context, repoPath, commands string) (Result, error) {
	return inv.Run(ctx, repoPath, []string{"update-ref", "--stdin"}, nil, []byte(commands), TimeoutShort)
}

// CommitGraphWrite writes the commit-graph file for repoPath.
func (inv *Invoker) CommitGraphWrite(ctx context.Context, repoPath string) (Result, error) {
	return inv.Run(ctx, repoPath, []string{"commit-graph", "write", "--reachable"}, nil, nil, TimeoutFetch)
}

// SymbolicRefSet points a symbolic ref (usually HEAD) at a target ref.
func (inv *Invoker) SymbolicRefSet(ctx context.Context, repoPath, ref, target string) error {
	res, err := inv.Run(ctx, repoPath, []string{"symbolic-ref", ref, target}, nil, nil, TimeoutShort)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git symbolic-ref %s %s failed: %s", ref, target, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// RemoteAdd adds a remote named name pointing at url, with git's default
// fetch refspec; callers adjust refspecs and other remote config separately.
func (inv *Invoker) RemoteAdd(ctx context.Context, repoPath, name, url string) error {
	res, err := inv.Run(ctx, repoPath, []string{"remote", "add", name, url}, nil, nil, TimeoutShort)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git remote add %s %s failed: %s", name, url, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// RemoteRemove removes a remote, ignoring "no such remote".
func (inv *Invoker) RemoteRemove(ctx context.Context, repoPath, name string) error {
	res, err := inv.Run(ctx, repoPath, []string{"remote", "remove", name}, nil, nil, TimeoutShort)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !strings.Contains(res.Stderr, "No such remote") {
		return fmt.Errorf("git remote remove %s failed: %s", name, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// RemoteList lists configured remote names.
func (inv *Invoker) RemoteList(ctx context.Context, repoPath string) ([]string, error) {
	res, err := inv.Run(ctx, repoPath, []string{"remote"}, nil, nil, TimeoutShort)
	if err != nil {
		return nil, err
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// InitBare creates a new bare repository at path.
func (inv *Invoker) InitBare(ctx context.Context, path string) (Result, error) {
	return inv.Run(ctx, "", []string{"init", "--bare", path}, nil, nil, TimeoutShort)
}

// CountObjectsResult is the parsed output of `git count-objects -v`, used
// by the fsck controller to decide whether a repack is due (spec.md §4.5).
type CountObjectsResult struct {
	Count         int
	SizeKiB       int64
	InPack        int
	Packs         int
	SizePackKiB   int64
	PrunePackable int
	Garbage       int
	SizeGarbageKiB int64
}

// CountObjects runs `git count-objects -v` and parses its "key: value" lines.
func (inv *Invoker) CountObjects(ctx context.Context, repoPath string) (CountObjectsResult, error) {
	var out CountObjectsResult
	res, err := inv.Run(ctx, repoPath, []string{"count-objects", "-v"}, nil, nil, TimeoutShort)
	if err != nil {
		return out, err
	}
	if res.ExitCode != 0 {
		return out, fmt.Errorf("git count-objects -v failed: %s", strings.TrimSpace(res.Stderr))
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		var n int64
		fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &n)
		switch key {
		case "count":
			out.Count = int(n)
		case "size":
			out.SizeKiB = n
		case "in-pack":
			out.InPack = int(n)
		case "packs":
			out.Packs = int(n)
		case "size-pack":
			out.SizePackKiB = n
		case "prune-packable":
			out.PrunePackable = int(n)
		case "garbage":
			out.Garbage = int(n)
		case "size-garbage":
			out.SizeGarbageKiB = n
		}
	}
	return out, nil
}
