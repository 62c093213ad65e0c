// Package dumbpull implements the manifest-less replication mode of
// SPEC_FULL.md §11, grounded on original_source/grok-dumb-pull.py: for
// repositories that have their own git remotes and are not tracked by any
// grokmirror manifest, it fetches every matching remote and reports which
// repositories actually moved.
package dumbpull

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/repolock"
)

// Options controls one dumb-pull pass.
type Options struct {
	// Paths are repository paths (ending in ".git") or directories to
	// search recursively for bare repositories.
	Paths []string
	// Remotes is the fnmatch glob list of remote names to update;
	// defaults to ["*"] when empty.
	Remotes []string
	// SVN treats each Remotes entry as a git-svn remote fetched with
	// "git svn fetch <remote>" ("*" becomes "--all") instead of
	// "git remote update <name> --prune".
	SVN bool
	// PostUpdateHook runs, with the repo path as its only argument,
	// after any repository whose refs changed.
	PostUpdateHook string
	// Threads caps concurrent repositories processed at once; 0 defaults
	// to NumCPU capped at 10.
	Threads int
}

// Result reports what happened to one repository.
type Result struct {
	Path    string
	Changed bool
	Err     error
}

// Run expands opts.Paths into concrete repository directories and fetches
// each one's remotes concurrently, returning one Result per repository
// found. A locked-by-another-process repository is skipped, not an error.
func Run(ctx context.Context, git *gitutil.Invoker, log zerolog.Logger, opts Options) ([]Result, error) {
	remotes := opts.Remotes
	if len(remotes) == 0 {
		remotes = []string{"*"}
	}

	repos, err := expandPaths(opts.Paths)
	if err != nil {
		return nil, err
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
		if threads > 10 {
			threads = 10
		}
		if threads < 1 {
			threads = 1
		}
	}

	var mu sync.Mutex
	var results []Result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			changed, err := pullRepo(gctx, git, log, repo, remotes, opts.SVN)

			mu.Lock()
			results = append(results, Result{Path: repo, Changed: changed, Err: err})
			mu.Unlock()

			if err == nil && changed && opts.PostUpdateHook != "" {
				runPostUpdateHook(gctx, log, opts.PostUpdateHook, repo)
			}
			return nil // one repo's failure never aborts the rest
		})
	}
	_ = g.Wait()

	return results, nil
}

// expandPaths turns the mixed list of repo paths and search roots from
// opts.Paths into a flat, deduplicated list of repository directories.
func expandPaths(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, entry := range paths {
		if strings.HasSuffix(entry, ".git") {
			if _, err := os.Stat(entry); err != nil {
				return nil, fmt.Errorf("%s does not exist: %w", entry, err)
			}
			if !seen[entry] {
				seen[entry] = true
				out = append(out, entry)
			}
			continue
		}
		found, err := walkGitDirs(entry)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", entry, err)
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// walkGitDirs searches root recursively for bare repositories, not
// descending into a directory once it looks like one.
func walkGitDirs(root string) ([]string, error) {
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
			if isBareGitRepo(path) {
				repos = append(repos, path)
				continue
			}
			if err := walk(path); err != nil {
				return err
			}
		}
		return nil
	}
	if isBareGitRepo(root) {
		return []string{root}, nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return repos, nil
}

func isBareGitRepo(path string) bool {
	if info, err := os.Stat(filepath.Join(path, "objects")); err != nil || !info.IsDir() {
		return false
	}
	if info, err := os.Stat(filepath.Join(path, "refs")); err != nil || !info.IsDir() {
		return false
	}
	if info, err := os.Stat(filepath.Join(path, "HEAD")); err != nil || info.IsDir() {
		return false
	}
	return true
}

// pullRepo fetches every remote matching remotes (or svn-fetches them,
// under opts.SVN) and reports whether any ref moved, skipping the
// repository entirely if another process already holds its lock.
func pullRepo(ctx context.Context, git *gitutil.Invoker, log zerolog.Logger, gitdir string, remotes []string, svn bool) (bool, error) {
	oldRevs, err := revParseAll(ctx, git, gitdir)
	if err != nil {
		return false, err
	}

	lock, err := repolock.Acquire(ctx, gitdir, false)
	if err != nil {
		log.Info().Str("repo", gitdir).Msg("could not obtain exclusive lock, assuming another process is running")
		return false, nil
	}
	defer lock.Release()

	if svn {
		for _, remote := range remotes {
			arg := remote
			if arg == "*" {
				arg = "--all"
			}
			log.Info().Str("repo", gitdir).Str("remote", arg).Msg("running git-svn fetch")
			runRemoteUpdate(ctx, git, log, gitdir, []string{"svn", "fetch", arg})
		}
	} else {
		existing, err := git.RemoteList(ctx, gitdir)
		if err != nil {
			return false, err
		}
		if len(existing) == 0 {
			log.Info().Str("repo", gitdir).Msg("repository has no defined remotes")
			return false, nil
		}
		for _, pattern := range remotes {
			matched := false
			for _, name := range existing {
				if manifest.MatchesAny(name, []string{pattern}) {
					matched = true
					log.Info().Str("repo", gitdir).Str("remote", name).Msg("updating remote")
					runRemoteUpdate(ctx, git, log, gitdir, []string{"remote", "update", name, "--prune"})
				}
			}
			if !matched {
				log.Info().Str("repo", gitdir).Str("pattern", pattern).Msg("no remotes matched")
			}
		}
	}

	newRevs, err := revParseAll(ctx, git, gitdir)
	if err != nil {
		return false, err
	}
	return oldRevs != newRevs, nil
}

func revParseAll(ctx context.Context, git *gitutil.Invoker, gitdir string) (string, error) {
	res, err := git.Run(ctx, gitdir, []string{"rev-parse", "--all"}, nil, nil, gitutil.TimeoutShort)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// runRemoteUpdate runs a fetch/update command, routing its familiar
// progress chatter ("From ...", "-> ...") to debug and anything else to a
// warning, mirroring the original's stderr triage.
func runRemoteUpdate(ctx context.Context, git *gitutil.Invoker, log zerolog.Logger, gitdir string, args []string) {
	res, err := git.Run(ctx, gitdir, args, nil, nil, gitutil.TimeoutFetch)
	if err != nil {
		log.Warn().Err(err).Str("repo", gitdir).Msg("remote update failed to start")
		return
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "From ") || strings.Contains(line, "-> ") {
			log.Debug().Str("repo", gitdir).Msg(line)
		} else {
			log.Warn().Str("repo", gitdir).Msg(line)
		}
	}
}

func runPostUpdateHook(ctx context.Context, log zerolog.Logger, hookscript, gitdir string) {
	info, err := os.Stat(hookscript)
	if err != nil || info.Mode()&0111 == 0 {
		log.Warn().Str("hook", hookscript).Msg("post_update_hook is not executable")
		return
	}

	cmd := exec.CommandContext(ctx, hookscript, gitdir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Str("hook", hookscript).Msg("post_update_hook failed")
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		log.Warn().Str("hook", hookscript).Msg("hook stderr: " + s)
	}
	if s := strings.TrimSpace(stdout.String()); s != "" {
		log.Info().Str("hook", hookscript).Msg("hook stdout: " + s)
	}
}
