package fsckctl

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RecloneMarkName is the sentinel file the controller touches to ask the
// pull engine to delete-and-reclone a repository (spec.md §4.5/§6).
const RecloneMarkName = "grokmirror.reclone"

// MatchesRecloneError reports whether output contains any of the
// configured substrings that indicate the repository is corrupt enough to
// warrant a full reclone (spec.md §4.5 "Reclone trigger").
func MatchesRecloneError(output string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if strings.Contains(output, p) {
			return p, true
		}
	}
	return "", false
}

// MarkForReclone writes the reclone sentinel with a summary of the
// triggering error.
func MarkForReclone(repoPath, reason string) error {
	path := filepath.Join(repoPath, RecloneMarkName)
	body := time.Now().UTC().Format(time.RFC3339) + " " + reason + "\n"
	return os.WriteFile(path, []byte(body), 0644)
}

// IsMarkedForReclone reports whether the reclone sentinel is present.
func IsMarkedForReclone(repoPath string) bool {
	_, err := os.Stat(filepath.Join(repoPath, RecloneMarkName))
	return err == nil
}

// ClearRecloneMark removes the sentinel, called by the pull engine after
// it has deleted and re-cloned the repository.
func ClearRecloneMark(repoPath string) error {
	err := os.Remove(filepath.Join(repoPath, RecloneMarkName))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
