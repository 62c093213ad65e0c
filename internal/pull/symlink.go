package pull

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mricon/grokmirror-go/internal/manifest"
)

// applySymlinks realizes entry.Symlinks as actual filesystem symlinks
// under toplevel pointing at key's real repository directory, the
// controller-thread, no-git-work step of spec.md §4.6 step 6.
func (e *Engine) applySymlinks(toplevel, key string, entry *manifest.Entry) error {
	realPath := filepath.Join(toplevel, strings.TrimPrefix(key, "/"))
	for _, alias := range entry.Symlinks {
		aliasPath := filepath.Join(toplevel, strings.TrimPrefix(alias, "/"))
		if existing, err := os.Readlink(aliasPath); err == nil && existing == realPath {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(aliasPath), 0755); err != nil {
			return fmt.Errorf("creating parent directory for symlink %s: %w", aliasPath, err)
		}
		_ = os.Remove(aliasPath)
		if err := os.Symlink(realPath, aliasPath); err != nil {
			return fmt.Errorf("linking %s -> %s: %w", aliasPath, realPath, err)
		}
	}
	return nil
}
