// Package pull implements the replica-side engine of spec.md §4.6: the
// manifest fetch/delta/dispatch/purge loop, its worker pool, and the
// push-notification socket that lets an origin wake a replica early.
package pull

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mricon/grokmirror-go/internal/config"
	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/objstore"
	"github.com/mricon/grokmirror-go/internal/pull/pqueue"
	"github.com/mricon/grokmirror-go/internal/pull/socket"
	"github.com/mricon/grokmirror-go/internal/report"
)

// Engine drives one replica's pull passes against a configured origin.
type Engine struct {
	Cfg      *config.Config
	Git      *gitutil.Invoker
	Objstore *objstore.Store
	Log      zerolog.Logger

	HTTPClient *http.Client
	Queue      *pqueue.Queue
	Now        func() time.Time
}

// NewEngine wires an Engine from its dependencies.
func NewEngine(cfg *config.Config, git *gitutil.Invoker, store *objstore.Store, log zerolog.Logger) *Engine {
	return &Engine{
		Cfg:        cfg,
		Git:        git,
		Objstore:   store,
		Log:        log,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		Queue:      pqueue.New(),
		Now:        time.Now,
	}
}

// fetchManifest prefers remote.manifest_command when configured, falling
// back to the HTTP GET otherwise. force is set for single-repo push pulls,
// where a stale remote-side cache must not short-circuit the fetch.
func (e *Engine) fetchManifest(ctx context.Context, ifModSince time.Time, force bool) (*manifest.Manifest, bool, error) {
	if e.Cfg.Remote.ManifestCommand != "" {
		return fetchRemoteManifestViaCommand(ctx, e.Cfg.Remote.ManifestCommand, force)
	}
	return fetchRemoteManifest(ctx, e.HTTPClient, e.Cfg.Remote.ManifestURL, ifModSince)
}

// LocalManifestPath returns where this replica persists its own view of
// the manifest between passes.
func (e *Engine) LocalManifestPath() string {
	return filepath.Join(e.Cfg.Core.Toplevel, ".grokmirror", "manifest.json")
}

// RunOnce performs one full pass: fetch, delta, dispatch, symlink apply,
// purge, persist (spec.md §4.6 steps 1-8).
func (e *Engine) RunOnce(ctx context.Context) ([]report.Row, error) {
	toplevel := e.Cfg.Core.Toplevel
	localPath := e.LocalManifestPath()

	var ifModSince time.Time
	if fi, err := os.Stat(localPath); err == nil {
		ifModSince = fi.ModTime()
	}

	local, err := manifest.ReadFile(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			local = manifest.New("")
		} else {
			return nil, fmt.Errorf("reading local manifest: %w", err)
		}
	}

	remote, notModified, err := e.fetchManifest(ctx, ifModSince, false)
	if err != nil {
		return nil, err
	}
	if notModified {
		e.Log.Debug().Msg("remote manifest not modified since last pass")
		return nil, nil
	}

	plan := ComputeDelta(local, remote)
	work := append(append([]string{}, plan.New...), plan.Updated...)
	waves := TopoWaves(remote, work)

	threads := e.workerCount()

	var rowsMu sync.Mutex
	var rows []report.Row
	var anyNewClone bool
	var changedRepos []string

	for _, wave := range waves {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(threads)
		for _, key := range wave {
			key := key
			g.Go(func() error {
				re := remote.Repos[key]
				le := local.Repos[key]
				row, newEntry, procErr := e.processRepo(gctx, toplevel, key, re, le)

				rowsMu.Lock()
				rows = append(rows, row)
				if procErr == nil {
					local.Repos[key] = newEntry
					changedRepos = append(changedRepos, key)
					if row.Action == "cloned" {
						anyNewClone = true
					}
				}
				rowsMu.Unlock()
				return nil // a failed repo never aborts siblings or later waves
			})
		}
		_ = g.Wait()
	}

	for _, key := range plan.SymlinkOnly {
		entry := remote.Repos[key]
		if err := e.applySymlinks(toplevel, key, entry); err != nil {
			e.Log.Warn().Err(err).Str("repo", key).Msg("failed to apply symlink-only update")
			rows = append(rows, report.Row{Path: key, Action: "failed", Err: err})
			continue
		}
		local.Repos[key].Symlinks = entry.Symlinks
		rows = append(rows, report.Row{Path: key, Action: "updated", Detail: "symlinks only"})
	}

	if e.Cfg.Pull.Purge && len(plan.Gone) > 0 {
		purged, purgeErr := e.applyPurge(ctx, toplevel, local, plan.Gone)
		if purgeErr != nil {
			e.Log.Warn().Err(purgeErr).Msg("purge refused for this pass")
			for _, key := range plan.Gone {
				rows = append(rows, report.Row{Path: key, Action: "skipped", Detail: "purge_refused"})
			}
		} else {
			for _, key := range purged {
				rows = append(rows, report.Row{Path: key, Action: "skipped", Detail: "purged"})
			}
		}
	}

	local.Meta.Version = remote.Meta.Version
	if err := manifest.WriteFile(localPath, local, false); err != nil {
		return rows, fmt.Errorf("persisting local manifest: %w", err)
	}

	e.runPostHooks(ctx, changedRepos, anyNewClone)
	return rows, nil
}

// PullSingle fetches the current remote manifest and pulls exactly one
// repository, the path a push notification names (spec.md §4.6 "Push
// notification socket"). Unknown paths are ignored with a warning.
func (e *Engine) PullSingle(ctx context.Context, repoPath string) (report.Row, error) {
	toplevel := e.Cfg.Core.Toplevel
	localPath := e.LocalManifestPath()

	local, err := manifest.ReadFile(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			local = manifest.New("")
		} else {
			return report.Row{}, fmt.Errorf("reading local manifest: %w", err)
		}
	}

	remote, _, err := e.fetchManifest(ctx, time.Time{}, true)
	if err != nil {
		return report.Row{}, err
	}

	key, err := keyForPath(toplevel, repoPath)
	if err != nil {
		return report.Row{}, err
	}

	re, ok := remote.Repos[key]
	if !ok {
		e.Log.Warn().Str("repo", key).Msg("push notification for a path not present in the remote manifest")
		return report.Row{Path: key, Action: "skipped", Detail: "unknown path"}, nil
	}

	row, newEntry, err := e.processRepo(ctx, toplevel, key, re, local.Repos[key])
	if err != nil {
		return row, err
	}
	local.Repos[key] = newEntry
	if err := manifest.WriteFile(localPath, local, false); err != nil {
		return row, fmt.Errorf("persisting local manifest after push pull: %w", err)
	}
	return row, nil
}

// RunDaemon repeats RunOnce on the configured refresh interval, also
// running the push-notification socket listener when pull.socket is set,
// until ctx is cancelled (spec.md §4.6 step 9, §6 "daemon mode").
func (e *Engine) RunDaemon(ctx context.Context) error {
	refresh := time.Duration(e.Cfg.Pull.Refresh) * time.Second
	if refresh <= 0 {
		refresh = 300 * time.Second
	}

	if e.Cfg.Pull.Socket != "" {
		listener := &socket.Listener{
			Path:     e.Cfg.Pull.Socket,
			Debounce: time.Duration(e.Cfg.Pull.DebounceSeconds) * time.Second,
			Log:      e.Log,
			Notify: func(path string) {
				e.Queue.Push(&pqueue.Item{Path: path, Priority: pqueue.PriorityPush})
			},
		}
		go func() {
			if err := listener.Serve(ctx); err != nil {
				e.Log.Error().Err(err).Msg("push socket listener exited")
			}
		}()
	}

	for {
		rows, err := e.RunOnce(ctx)
		if err != nil {
			e.Log.Error().Err(err).Msg("pull pass failed")
		} else if len(rows) > 0 {
			e.Log.Info().Msg(report.Summary(rows, 0))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(refresh):
		case <-e.Queue.Signal():
			e.drainPushQueue(ctx)
		}
	}
}

func (e *Engine) drainPushQueue(ctx context.Context) {
	for {
		item := e.Queue.Pop()
		if item == nil {
			return
		}
		if _, err := e.PullSingle(ctx, item.Path); err != nil {
			e.Log.Error().Err(err).Str("repo", item.Path).Msg("push-triggered pull failed")
		}
	}
}

func (e *Engine) workerCount() int {
	n := e.Cfg.Pull.PullThreads
	if n > 0 {
		return n
	}
	n = runtime.NumCPU()
	if n > 10 {
		n = 10
	}
	if n < 1 {
		n = 1
	}
	return n
}

func finishRow(row report.Row, start, now time.Time) report.Row {
	row.Duration = now.Sub(start)
	return row
}

func keyForPath(toplevel, repoPath string) (string, error) {
	rel, err := filepath.Rel(toplevel, repoPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s relative to toplevel: %w", repoPath, err)
	}
	return "/" + filepath.ToSlash(rel), nil
}
