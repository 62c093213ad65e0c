package manifest

import (
	"fmt"

	"github.com/mricon/grokmirror-go/internal/errkind"
)

// QuorumCheck implements the purge-quorum arithmetic of spec.md §4.3: a
// purge is allowed when the fraction of entries being removed does not
// exceed quorumFraction, OR the absolute number removed is at most
// absThreshold. Exceeding both, the purge is refused unless force is set.
//
// oldCount is the number of entries in the manifest currently on disk;
// removedCount is how many of those are absent from the new manifest
// being applied.
func QuorumCheck(oldCount, removedCount int, quorumFraction float64, absThreshold int, force bool) error {
	if oldCount == 0 || removedCount == 0 {
		return nil
	}
	fraction := float64(removedCount) / float64(oldCount)
	if fraction <= quorumFraction {
		return nil
	}
	if removedCount <= absThreshold {
		return nil
	}
	if force {
		return nil
	}
	return fmt.Errorf("refusing to purge %d/%d entries (%.1f%% > quorum %.1f%%): %w",
		removedCount, oldCount, fraction*100, quorumFraction*100, errkind.ErrPurgeRefused)
}
