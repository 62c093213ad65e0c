package fsckctl_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/fsckctl"
)

func TestDecideRepackFullWhenNeverRepacked(t *testing.T) {
	st := &fsckctl.RepoStatus{}
	th := fsckctl.Thresholds{LooseObjThreshold: 1200, PacksThreshold: 20, FullRepackDays: 65}

	level := fsckctl.DecideRepack(fsckctl.ObjectCounts{}, st, th, time.Now(), nil)
	require.Equal(t, fsckctl.RepackFull, level)
}

func TestDecideRepackFullWhenIntervalElapsed(t *testing.T) {
	now := time.Now()
	st := &fsckctl.RepoStatus{LastFullRepack: now.Add(-66 * 24 * time.Hour)}
	th := fsckctl.Thresholds{FullRepackDays: 65}

	level := fsckctl.DecideRepack(fsckctl.ObjectCounts{}, st, th, now, nil)
	require.Equal(t, fsckctl.RepackFull, level)
}

func TestDecideRepackQuickOnLooseObjects(t *testing.T) {
	now := time.Now()
	st := &fsckctl.RepoStatus{LastFullRepack: now.Add(-1 * 24 * time.Hour)}
	th := fsckctl.Thresholds{LooseObjThreshold: 1200, PacksThreshold: 20, FullRepackDays: 65}

	level := fsckctl.DecideRepack(fsckctl.ObjectCounts{LooseObjects: 1500}, st, th, now, nil)
	require.Equal(t, fsckctl.RepackQuick, level)
}

func TestDecideRepackNoneWhenUnderThresholds(t *testing.T) {
	now := time.Now()
	st := &fsckctl.RepoStatus{LastFullRepack: now.Add(-1 * 24 * time.Hour)}
	th := fsckctl.Thresholds{LooseObjThreshold: 1200, PacksThreshold: 20, FullRepackDays: 65}

	level := fsckctl.DecideRepack(fsckctl.ObjectCounts{LooseObjects: 10, PackCount: 1}, st, th, now, nil)
	require.Equal(t, fsckctl.RepackNone, level)
}

func TestShouldFsckHonorsForceAndFirstSeen(t *testing.T) {
	now := time.Now()
	require.True(t, fsckctl.ShouldFsck(&fsckctl.RepoStatus{}, now, false), "never checked before")
	require.True(t, fsckctl.ShouldFsck(&fsckctl.RepoStatus{NextCheck: now.Add(time.Hour)}, now, true), "force overrides")
	require.False(t, fsckctl.ShouldFsck(&fsckctl.RepoStatus{NextCheck: now.Add(time.Hour)}, now, false))
	require.True(t, fsckctl.ShouldFsck(&fsckctl.RepoStatus{NextCheck: now.Add(-time.Hour)}, now, false))
}

func TestStaggerFirstCheckStaysWithinWindow(t *testing.T) {
	now := time.Now()
	next := fsckctl.StaggerFirstCheck(30, now, rand.New(rand.NewSource(1)))
	require.True(t, !next.Before(now))
	require.True(t, next.Before(now.Add(31*24*time.Hour)))
}

func TestPruneExpiryRulesForAlternateProviders(t *testing.T) {
	expire, skip := fsckctl.PruneExpiry(false, "yes", "now")
	require.False(t, skip)
	require.Equal(t, "now", expire)

	_, skip = fsckctl.PruneExpiry(true, "yes", "now")
	require.True(t, skip, "a precious alternates provider is never pruned")

	expire, skip = fsckctl.PruneExpiry(true, "no", "now")
	require.False(t, skip)
	require.Equal(t, "2.weeks.ago", expire)
}
