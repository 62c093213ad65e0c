package fsckctl

import (
	"math/rand"
	"time"
)

// RepackLevel names the repack action the controller decided on for a
// repo this pass.
type RepackLevel int

const (
	RepackNone RepackLevel = iota
	RepackQuick
	RepackFull
)

// ObjectCounts summarizes what `git count-objects -v` reports for a repo.
type ObjectCounts struct {
	LooseObjects int
	PackCount    int
	PackSize     int64
	HasBitmap    bool
}

// Thresholds holds the tunables from the [fsck] config section that drive
// the repack decision, named exactly as spec.md §4.5 lists them.
type Thresholds struct {
	LooseObjThreshold int
	PacksThreshold    int
	FullRepackDays    int
	FsckFrequencyDays int
}

// DecideRepack implements spec.md §4.5's repack policy: quick repack if
// loose objects or pack count reach their threshold; full repack if the last
// full repack is older than the (jittered) adaptive interval.
func DecideRepack(counts ObjectCounts, st *RepoStatus, th Thresholds, now time.Time, jitter func() time.Duration) RepackLevel {
	fullInterval := time.Duration(th.FullRepackDays) * 24 * time.Hour
	if jitter != nil {
		fullInterval += jitter()
	}
	if st.LastFullRepack.IsZero() || now.Sub(st.LastFullRepack) >= fullInterval {
		return RepackFull
	}
	if counts.LooseObjects >= th.LooseObjThreshold || counts.PackCount >= th.PacksThreshold {
		return RepackQuick
	}
	return RepackNone
}

// DefaultFullRepackJitter returns a jitter function spreading full
// repacks +/- 2 days, matching spec.md §4.5 "(default 65 days, jittered
// ±2 days)".
func DefaultFullRepackJitter(rnd *rand.Rand) func() time.Duration {
	return func() time.Duration {
		days := rnd.Intn(5) - 2 // -2..+2
		return time.Duration(days) * 24 * time.Hour
	}
}

// ShouldFsck reports whether a connectivity/object check is due this
// pass: nextcheck has arrived, or force is set.
func ShouldFsck(st *RepoStatus, now time.Time, force bool) bool {
	if force {
		return true
	}
	if st.NextCheck.IsZero() {
		return true // never checked before
	}
	return !now.Before(st.NextCheck)
}

// StaggerFirstCheck computes the nextcheck for a repo seen for the first
// time: today + a uniform random offset within fsck_frequency, so a large
// fleet's checks do not all land on the same day.
func StaggerFirstCheck(freqDays int, now time.Time, rnd *rand.Rand) time.Time {
	if freqDays <= 0 {
		freqDays = 30
	}
	offset := time.Duration(rnd.Intn(freqDays)) * 24 * time.Hour
	return now.Add(offset)
}

// NextCheckAfterSuccess computes the following nextcheck after a
// successful fsck: today + fsck_frequency.
func NextCheckAfterSuccess(freqDays int, now time.Time) time.Time {
	if freqDays <= 0 {
		freqDays = 30
	}
	return now.Add(time.Duration(freqDays) * 24 * time.Hour)
}

// PruneExpiry decides the `--expire` value for a repo's prune pass: repos
// providing alternates to another repo use a conservative 2-week window
// (or are skipped entirely when precious=yes); everyone else uses the
// configured prune_expire (default "now").
func PruneExpiry(providesAlternates bool, precious string, configuredExpire string) (expire string, skip bool) {
	if !providesAlternates {
		return configuredExpire, false
	}
	if precious == "yes" {
		return "", true
	}
	return "2.weeks.ago", false
}
