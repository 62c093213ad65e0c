package objstore

import (
	"context"
	"fmt"
	"strings"
)

// MemberRepackFlags returns the repack flags for a repo that has its
// objects in an objstore alternate: "-adlq" so no objects remain locally
// (spec.md §4.4 "Repack rules").
func MemberRepackFlags() []string {
	return []string{"-a", "-d", "-l", "-q"}
}

// ObjstoreRepackFlags returns the repack flags for the objstore repo
// itself: delta islands enabled, scoped by an island regex built from the
// member ref namespaces.
func ObjstoreRepackFlags() []string {
	return []string{"-a", "-d", "-q", "--window=250", "--depth=50"}
}

// IslandRegex builds the repack.packIsland regex grouping every member's
// virtual ref namespace into its own delta island, so each member's
// objects pack with good locality instead of interleaving across forks.
func IslandRegex(siblingIDs []string) string {
	parts := make([]string, len(siblingIDs))
	for i, sib := range siblingIDs {
		parts[i] = fmt.Sprintf("refs/virtual/%s/", sib)
	}
	return "^(?:" + strings.Join(parts, "|") + ")"
}

// RepackMember runs the member-side repack. With precious=yes it
// temporarily disables preciousObjects and restores it afterward via the
// crash-safe sentinel file (spec.md §9 Open Question 3); precious=always
// keeps it on throughout, and precious=no leaves it untouched.
func (s *Store) RepackMember(ctx context.Context, memberPath, precious string) error {
	togglePrecious := precious != "always" && precious != "no"

	if togglePrecious {
		if err := writeSentinelThenDisable(ctx, s, memberPath); err != nil {
			return err
		}
	}

	res, err := s.Git.Repack(ctx, memberPath, MemberRepackFlags())
	repackErr := err
	if repackErr == nil && res.ExitCode != 0 {
		repackErr = fmt.Errorf("git repack %v in %s failed: %s", MemberRepackFlags(), memberPath, res.Stderr)
	}

	if togglePrecious {
		if restoreErr := restoreFromSentinel(ctx, s, memberPath); restoreErr != nil && repackErr == nil {
			repackErr = restoreErr
		}
	}
	return repackErr
}

func writeSentinelThenDisable(ctx context.Context, s *Store, memberPath string) error {
	if err := touchSentinel(memberPath); err != nil {
		return fmt.Errorf("writing repack sentinel: %w", err)
	}
	return s.SetPreciousObjects(ctx, memberPath, false)
}

func restoreFromSentinel(ctx context.Context, s *Store, memberPath string) error {
	if err := s.SetPreciousObjects(ctx, memberPath, true); err != nil {
		return fmt.Errorf("restoring preciousObjects after repack: %w", err)
	}
	return removeSentinel(memberPath)
}

// RepackObjstore runs the objstore-side repack with delta islands scoped
// to the given sibling IDs.
func (s *Store) RepackObjstore(ctx context.Context, objstorePath string, siblingIDs []string) error {
	if err := s.Git.ConfigSet(ctx, objstorePath, "repack.packIsland", IslandRegex(siblingIDs)); err != nil {
		return fmt.Errorf("configuring delta islands: %w", err)
	}
	res, err := s.Git.Repack(ctx, objstorePath, ObjstoreRepackFlags())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git repack %v in %s failed: %s", ObjstoreRepackFlags(), objstorePath, res.Stderr)
	}
	return nil
}

// RecoverInterruptedRepack restores preciousObjects on any member whose
// sentinel file is present from a previous, interrupted pass, and clears
// the sentinel. The fsck controller calls this before starting a new pass.
func (s *Store) RecoverInterruptedRepack(ctx context.Context, memberPath string) error {
	if !sentinelExists(memberPath) {
		return nil
	}
	s.Log.Warn().Str("repo", memberPath).Msg("found stale repack sentinel, restoring preciousObjects")
	if err := s.SetPreciousObjects(ctx, memberPath, true); err != nil {
		return err
	}
	return removeSentinel(memberPath)
}
