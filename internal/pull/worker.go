package pull

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mricon/grokmirror-go/internal/fsckctl"
	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/report"
	"github.com/mricon/grokmirror-go/internal/repolock"
)

// retryBackoffBase and retryMaxAttempts implement spec.md §4.6 "on
// transient network failure, retry with exponential backoff (base 5s, max
// 3 attempts) before surfacing".
const (
	retryBackoffBase = 5 * time.Second
	retryMaxAttempts = 3
)

// processRepo implements the "worker operation per repo" of spec.md §4.6:
// lock, reclone check, init of a new repo, objstore wiring, fetch,
// HEAD/manifest update, lock release.
func (e *Engine) processRepo(ctx context.Context, toplevel, key string, remote, local *manifest.Entry) (report.Row, *manifest.Entry, error) {
	start := e.Now()
	repoPath := filepath.Join(toplevel, strings.TrimPrefix(key, "/"))
	row := report.Row{Path: key}

	lockCtx, cancel := context.WithTimeout(ctx, e.refreshDeadline())
	defer cancel()
	lock, err := repolock.Acquire(lockCtx, repoPath, true)
	if err != nil {
		row.Action, row.Err = "failed", fmt.Errorf("acquiring lock: %w", err)
		return finishRow(row, start, e.Now()), local, row.Err
	}
	defer lock.Release()

	if fsckctl.IsMarkedForReclone(repoPath) {
		e.Log.Warn().Str("repo", repoPath).Msg("reclone mark present, deleting worktree before reclone")
		if err := os.RemoveAll(repoPath); err != nil {
			row.Action, row.Err = "failed", fmt.Errorf("removing worktree for reclone: %w", err)
			return finishRow(row, start, e.Now()), local, row.Err
		}
		_ = fsckctl.ClearRecloneMark(repoPath)
		local = nil
	}

	isNew := local == nil
	if isNew {
		if err := e.initRepo(ctx, repoPath, key); err != nil {
			row.Action, row.Err = "failed", err
			return finishRow(row, start, e.Now()), local, err
		}
	}

	// Objstore membership must be wired before the fetch that follows, so a
	// brand-new fork-family member can borrow its siblings' objects via
	// alternates instead of pulling them all again from origin.
	if remote.ForkGroup != nil && *remote.ForkGroup != "" {
		if err := e.wireForkGroup(ctx, toplevel, repoPath, *remote.ForkGroup); err != nil {
			e.Log.Warn().Err(err).Str("repo", repoPath).Msg("failed to wire fork-group membership")
		}
	}

	opErr := e.retrying(ctx, func(ctx context.Context) error { return e.fetchRepo(ctx, repoPath) })
	if opErr != nil {
		row.Action, row.Err = "failed", opErr
		return finishRow(row, start, e.Now()), local, opErr
	}

	if remote.Head != "" {
		if err := e.Git.SymbolicRefSet(ctx, repoPath, "HEAD", remote.Head); err != nil {
			e.Log.Warn().Err(err).Str("repo", repoPath).Msg("failed to set HEAD")
		}
	}
	if remote.Owner != nil {
		if err := e.Git.ConfigSet(ctx, repoPath, "gitweb.owner", *remote.Owner); err != nil {
			e.Log.Debug().Err(err).Str("repo", repoPath).Msg("failed to set gitweb.owner")
		}
	}

	newEntry, err := e.rebuildEntry(ctx, repoPath, remote)
	if err != nil {
		row.Action, row.Err = "failed", err
		return finishRow(row, start, e.Now()), local, err
	}

	if isNew {
		row.Action = "cloned"
	} else {
		row.Action = "updated"
	}
	return finishRow(row, start, e.Now()), newEntry, nil
}

func (e *Engine) refreshDeadline() time.Duration {
	d := time.Duration(e.Cfg.Pull.Refresh) * time.Second
	if d <= 0 {
		d = 5 * time.Minute
	}
	return d
}

func (e *Engine) retrying(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if attempt > 0 {
			wait := retryBackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// initRepo creates an empty bare repository at repoPath and points its
// origin remote at key's clone URL, but does not fetch anything yet:
// fork-group wiring must run against an initialized-but-empty repo before
// the first fetch (spec.md §4.6).
func (e *Engine) initRepo(ctx context.Context, repoPath, key string) error {
	if err := os.MkdirAll(filepath.Dir(repoPath), 0755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", repoPath, err)
	}
	res, err := e.Git.InitBare(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("initializing %s: %w", repoPath, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git init --bare %s failed: %s", repoPath, res.Stderr)
	}
	cloneURL, err := joinSiteURL(e.Cfg.Remote.Site, key)
	if err != nil {
		return err
	}
	if err := e.Git.RemoteAdd(ctx, repoPath, "origin", cloneURL); err != nil {
		return fmt.Errorf("adding origin remote for %s: %w", key, err)
	}
	if err := e.Git.ConfigSet(ctx, repoPath, "remote.origin.mirror", "true"); err != nil {
		return fmt.Errorf("setting mirror flag for %s: %w", key, err)
	}
	return e.Git.ConfigSet(ctx, repoPath, "gc.auto", "0")
}

func (e *Engine) fetchRepo(ctx context.Context, repoPath string) error {
	res, err := e.Git.Fetch(ctx, repoPath, "origin", []string{"+refs/*:refs/*"}, true)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", repoPath, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git fetch in %s failed: %s", repoPath, res.Stderr)
	}
	return nil
}

func (e *Engine) wireForkGroup(ctx context.Context, toplevel, repoPath, guid string) error {
	objPath, err := e.Objstore.EnsureGUID(ctx, toplevel, guid)
	if err != nil {
		return fmt.Errorf("ensuring objstore %s: %w", guid, err)
	}
	if err := e.Objstore.WireMember(ctx, repoPath, objPath, e.Cfg.Fsck.Precious); err != nil {
		return fmt.Errorf("wiring member onto objstore %s: %w", guid, err)
	}
	if e.Cfg.Core.ObjstoreUsesPlumbing {
		return e.Objstore.FetchMemberPlumbing(ctx, objPath, repoPath)
	}
	return e.Objstore.FetchMember(ctx, objPath, repoPath)
}

// rebuildEntry recomputes the local manifest entry for a repo just pulled,
// taking most fields from the remote entry but recomputing the
// fingerprint from the repo's actual refs (spec.md §4.6 "update local
// fingerprint from git show-ref").
func (e *Engine) rebuildEntry(ctx context.Context, repoPath string, remote *manifest.Entry) (*manifest.Entry, error) {
	refs, err := e.Git.ShowRef(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("reading refs of %s: %w", repoPath, err)
	}
	fp := manifest.Fingerprint(refs, e.Cfg.Core.IgnoreGlobs)

	entry := remote.Clone()
	entry.Fingerprint = fp
	entry.Modified = remote.Modified
	return entry, nil
}

func joinSiteURL(site, key string) (string, error) {
	base, err := url.Parse(site)
	if err != nil {
		return "", fmt.Errorf("parsing remote.site %q: %w", site, err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + key
	return base.String(), nil
}
