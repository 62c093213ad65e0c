package pull

import (
	"context"
	"os/exec"
)

// runHook runs a configured post-hook script, logging but never
// propagating failures (spec.md §4.6 "Hook failures are logged but never
// abort the pass").
func (e *Engine) runHook(ctx context.Context, path string, args ...string) {
	if path == "" {
		return
	}
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		e.Log.Warn().Err(err).Str("hook", path).Bytes("output", out).Msg("post-hook failed")
	}
}

// runPostHooks fires the three post-hooks of spec.md §4.6: per-repo
// post_update_hook, a once-per-pass post_clone_complete_hook when any new
// clone succeeded, and an always-fired post_work_complete_hook.
func (e *Engine) runPostHooks(ctx context.Context, changedRepos []string, anyNewClone bool) {
	for _, repo := range changedRepos {
		e.runHook(ctx, e.Cfg.Pull.PostUpdateHook, repo)
	}
	if anyNewClone {
		e.runHook(ctx, e.Cfg.Pull.PostCloneCompleteHook)
	}
	e.runHook(ctx, e.Cfg.Pull.PostWorkCompleteHook)
}
