package pull

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/objstore"
)

// applyPurge implements spec.md §4.6 step 7: verify each candidate has no
// alternates dependency, pass the whole batch through the quorum check,
// then delete. A candidate that fails the alternates check is left in
// place (quarantined) rather than counted against the quorum, since it
// was never going to be deleted anyway.
func (e *Engine) applyPurge(ctx context.Context, toplevel string, local *manifest.Manifest, gone []string) ([]string, error) {
	allPaths := make([]string, 0, len(local.Repos))
	for key := range local.Repos {
		allPaths = append(allPaths, filepath.Join(toplevel, strings.TrimPrefix(key, "/")))
	}

	deletable := make([]string, 0, len(gone))
	quarantined := make([]string, 0)
	for _, key := range gone {
		repoPath := filepath.Join(toplevel, strings.TrimPrefix(key, "/"))
		safe, err := objstore.SafeToDelete(repoPath, allPaths)
		if err != nil {
			return nil, fmt.Errorf("checking alternates safety for %s: %w", key, err)
		}
		if safe {
			deletable = append(deletable, key)
		} else {
			quarantined = append(quarantined, key)
		}
	}

	if len(quarantined) > 0 {
		e.Log.Warn().Strs("repos", quarantined).Msg("skipping purge: still referenced via alternates")
	}

	if err := manifest.QuorumCheck(len(local.Repos), len(deletable),
		e.Cfg.Pull.PurgeQuorum, e.Cfg.Pull.PurgeThreshold, e.Cfg.Pull.ForcePurge); err != nil {
		return nil, err
	}

	purged := make([]string, 0, len(deletable))
	for _, key := range deletable {
		repoPath := filepath.Join(toplevel, strings.TrimPrefix(key, "/"))
		if err := os.RemoveAll(repoPath); err != nil {
			e.Log.Error().Err(err).Str("repo", repoPath).Msg("failed to remove purged repository")
			continue
		}
		delete(local.Repos, key)
		purged = append(purged, key)
	}

	for _, guid := range e.danglingObjstoreGUIDs(ctx, toplevel) {
		objPath := objstore.PathFor(toplevel, guid)
		if ok, err := e.Objstore.ObjstoreSafeToDelete(ctx, objPath); err == nil && ok {
			if err := os.RemoveAll(objPath); err != nil {
				e.Log.Warn().Err(err).Str("objstore", objPath).Msg("failed to remove emptied objstore repo")
			}
		}
	}

	return purged, nil
}

// danglingObjstoreGUIDs lists objstore repo guids currently on disk, so
// applyPurge can check whether a purge just emptied one out entirely.
func (e *Engine) danglingObjstoreGUIDs(ctx context.Context, toplevel string) []string {
	entries, err := os.ReadDir(filepath.Join(toplevel, "objstore"))
	if err != nil {
		return nil
	}
	var guids []string
	for _, ent := range entries {
		if ent.IsDir() && strings.HasSuffix(ent.Name(), ".git") {
			guids = append(guids, strings.TrimSuffix(ent.Name(), ".git"))
		}
	}
	return guids
}
