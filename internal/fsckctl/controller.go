package fsckctl

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mricon/grokmirror-go/internal/config"
	"github.com/mricon/grokmirror-go/internal/errkind"
	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/objstore"
	"github.com/mricon/grokmirror-go/internal/repolock"
	"github.com/mricon/grokmirror-go/internal/report"
)

// MailTransport delivers the pass report to the configured report_to
// address. The real sender lives outside this package (spec.md §9 "Global
// mutable state → injected context"); tests use a recording fake.
type MailTransport interface {
	Send(to, subject, body string) error
}

// Controller runs one fsck/repack pass over a set of repositories,
// combining the staggered-check decision (decision.go), the reclone
// trigger (reclone.go), and objstore fork-family maintenance into a single
// orchestrated sweep (spec.md §4.5).
type Controller struct {
	Cfg      *config.Config
	Git      *gitutil.Invoker
	Objstore *objstore.Store
	Log      zerolog.Logger
	Mail     MailTransport

	// Force skips the staggered schedule and fscks every repo this pass.
	Force bool

	// ConnOnly adds --connectivity-only to every git fsck invocation this
	// pass, skipping content verification for a faster, connectivity-only
	// sweep. Independent of Force: a pass can be forced and still run full
	// content checks, or run on schedule with connectivity-only checks.
	ConnOnly bool

	// Now and Rand are overridable for deterministic tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// NewController wires a Controller from its dependencies, defaulting Now
// and Rand to real time/entropy.
func NewController(cfg *config.Config, git *gitutil.Invoker, store *objstore.Store, log zerolog.Logger, mail MailTransport) *Controller {
	return &Controller{
		Cfg:      cfg,
		Git:      git,
		Objstore: store,
		Log:      log,
		Mail:     mail,
		Now:      time.Now,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RunPass walks every repo under toplevel, applying the check/repack
// decision to each, wiring newly detected fork families into the
// objstore, and mailing a summary report when report_to is configured.
func (c *Controller) RunPass(ctx context.Context, toplevel string, repoPaths []string) ([]report.Row, error) {
	started := c.Now()

	status, err := LoadStatus(toplevel)
	if err != nil {
		return nil, fmt.Errorf("loading fsck status: %w", err)
	}

	for _, repo := range repoPaths {
		if err := c.Objstore.RecoverInterruptedRepack(ctx, repo); err != nil {
			c.Log.Warn().Err(err).Str("repo", repo).Msg("failed to recover interrupted repack")
		}
	}

	if err := c.maintainObjstore(ctx, toplevel, repoPaths); err != nil {
		c.Log.Warn().Err(err).Msg("objstore maintenance failed for this pass")
	}

	var rows []report.Row
	for _, repo := range repoPaths {
		rows = append(rows, c.processRepo(ctx, repo, status))
	}

	if err := status.Save(); err != nil {
		return rows, fmt.Errorf("saving fsck status: %w", err)
	}

	elapsed := c.Now().Sub(started)
	if c.Cfg.Fsck.ReportTo != "" && c.Mail != nil {
		subject := fmt.Sprintf("grokmirror fsck report: %s", report.Summary(rows, elapsed))
		if err := c.Mail.Send(c.Cfg.Fsck.ReportTo, subject, report.Table(rows)); err != nil {
			c.Log.Warn().Err(err).Msg("failed to mail fsck report")
		}
	}
	return rows, nil
}

// maintainObjstore detects fork families among repoPaths and wires any
// member not already pointed at an objstore repository's alternates,
// migrating legacy alternates in place (spec.md §4.4).
func (c *Controller) maintainObjstore(ctx context.Context, toplevel string, repoPaths []string) error {
	families, err := c.Objstore.DetectForkFamilies(ctx, repoPaths)
	if err != nil {
		return fmt.Errorf("detecting fork families: %w", err)
	}
	for _, family := range families {
		obstorePath, err := c.Objstore.EnsureFamily(ctx, toplevel, family)
		if err != nil {
			c.Log.Warn().Err(err).Str("family", family.Key).Msg("failed to ensure objstore for fork family")
			continue
		}
		var siblingIDs []string
		for _, m := range family.Members {
			siblingIDs = append(siblingIDs, objstore.SiblingID(m.Path))
			if err := c.Objstore.MigrateLegacyAlternate(ctx, toplevel, m.Path, family, c.Cfg.Fsck.Precious); err != nil {
				c.Log.Warn().Err(err).Str("repo", m.Path).Msg("failed to migrate legacy alternate")
				continue
			}
			if err := c.Objstore.WireMember(ctx, m.Path, obstorePath, c.Cfg.Fsck.Precious); err != nil {
				c.Log.Warn().Err(err).Str("repo", m.Path).Msg("failed to wire member onto objstore")
				continue
			}
			fetchErr := c.Objstore.FetchMember(ctx, obstorePath, m.Path)
			if c.Cfg.Core.ObjstoreUsesPlumbing {
				fetchErr = c.Objstore.FetchMemberPlumbing(ctx, obstorePath, m.Path)
			}
			if fetchErr != nil {
				c.Log.Warn().Err(fetchErr).Str("repo", m.Path).Msg("failed to fetch member into objstore")
			}
		}
		if err := c.Objstore.RepackObjstore(ctx, obstorePath, siblingIDs); err != nil {
			c.Log.Warn().Err(err).Str("objstore", obstorePath).Msg("failed to repack objstore")
		}
	}
	return nil
}

// processRepo applies the per-repo decision sequence: lock, reclone check,
// fsck-due check, repack decision, status update.
func (c *Controller) processRepo(ctx context.Context, repo string, status *StatusFile) report.Row {
	start := c.Now()
	row := report.Row{Path: repo, Action: "skipped"}

	lock, err := repolock.Acquire(ctx, repo, false)
	if err != nil {
		if errkind.Is(err, errkind.ErrLockBusy) {
			row.Detail = "locked by another process"
			return finish(row, start, c.Now())
		}
		row.Action, row.Err = "failed", err
		return finish(row, start, c.Now())
	}
	defer lock.Release()

	if IsMarkedForReclone(repo) {
		row.Detail = "awaiting reclone"
		return finish(row, start, c.Now())
	}

	st := status.For(repo)
	th := Thresholds{
		LooseObjThreshold: c.Cfg.Fsck.LooseObjThreshold,
		PacksThreshold:    c.Cfg.Fsck.PacksThreshold,
		FullRepackDays:    c.Cfg.Fsck.FullRepackDays,
		FsckFrequencyDays: c.Cfg.Fsck.FsckFrequencyDays,
	}

	if st.NextCheck.IsZero() && st.LastCheck.IsZero() && !c.Force {
		st.NextCheck = StaggerFirstCheck(th.FsckFrequencyDays, c.Now(), c.Rand)
		row.Detail = "staggered first check"
		return finish(row, start, c.Now())
	}

	if !ShouldFsck(st, c.Now(), c.Force) {
		return finish(row, start, c.Now())
	}

	fsckArgs := []string{"--no-progress", "--no-dangling", "--no-reflogs"}
	if c.ConnOnly {
		fsckArgs = append(fsckArgs, "--connectivity-only")
	}
	fsckRes, err := c.Git.Fsck(ctx, repo, fsckArgs)
	if err != nil || fsckRes.ExitCode != 0 {
		msg := fsckRes.Stderr
		if err != nil {
			msg = err.Error()
		}
		if pattern, hit := MatchesRecloneError(msg, c.Cfg.Fsck.RecloneOnErrors); hit {
			if markErr := MarkForReclone(repo, pattern); markErr != nil {
				c.Log.Error().Err(markErr).Str("repo", repo).Msg("failed to mark repo for reclone")
			}
			row.Action, row.Detail = "recloned", "marked for reclone: "+pattern
			return finish(row, start, c.Now())
		}
		row.Action, row.Err = "failed", fmt.Errorf("git fsck: %s", msg)
		return finish(row, start, c.Now())
	}

	st.LastCheck = c.Now()
	st.NextCheck = NextCheckAfterSuccess(th.FsckFrequencyDays, c.Now())

	counts, err := c.Git.CountObjects(ctx, repo)
	if err != nil {
		row.Action, row.Err = "failed", fmt.Errorf("count-objects: %w", err)
		return finish(row, start, c.Now())
	}
	oc := ObjectCounts{
		LooseObjects: counts.Count,
		PackCount:    counts.Packs,
		PackSize:     counts.SizePackKiB * 1024,
	}

	jitter := DefaultFullRepackJitter(c.Rand)
	level := DecideRepack(oc, st, th, c.Now(), jitter)
	switch level {
	case RepackFull:
		if err := c.runRepack(ctx, repo, true); err != nil {
			row.Action, row.Err = "failed", err
			return finish(row, start, c.Now())
		}
		st.LastRepack, st.LastFullRepack = c.Now(), c.Now()
		st.QuickRepackCount = 0
		row.Action, row.Detail = "updated", "full repack"
	case RepackQuick:
		if err := c.runRepack(ctx, repo, false); err != nil {
			row.Action, row.Err = "failed", err
			return finish(row, start, c.Now())
		}
		st.LastRepack = c.Now()
		st.QuickRepackCount++
		row.Action, row.Detail = "updated", "quick repack"
	default:
		row.Action = "updated"
	}

	if c.Cfg.Fsck.Commitgraph {
		if _, err := c.Git.CommitGraphWrite(ctx, repo); err != nil {
			c.Log.Warn().Err(err).Str("repo", repo).Msg("commit-graph write failed")
		}
	}

	if err := c.runPrune(ctx, repo); err != nil {
		c.Log.Warn().Err(err).Str("repo", repo).Msg("prune failed")
	}

	return finish(row, start, c.Now())
}

func (c *Controller) runRepack(ctx context.Context, repo string, full bool) error {
	precious, err := c.Objstore.IsPrecious(ctx, repo)
	if err != nil {
		c.Log.Debug().Err(err).Str("repo", repo).Msg("could not read preciousObjects, assuming unset")
	}

	if precious {
		return c.Objstore.RepackMember(ctx, repo, c.Cfg.Fsck.Precious)
	}

	flags := []string{"-a", "-d"}
	if full {
		flags = append(flags, c.Cfg.Fsck.ExtraRepackFlagsFull...)
	} else {
		flags = append(flags, "-l")
	}
	res, err := c.Git.Repack(ctx, repo, flags)
	if err != nil {
		return fmt.Errorf("git repack: %w", errkind.ErrGitFailed)
	}
	if res.ExitCode != 0 {
		if pattern, hit := MatchesRecloneError(res.Stderr, c.Cfg.Fsck.RecloneOnErrors); hit {
			_ = MarkForReclone(repo, pattern)
			return fmt.Errorf("repack found corruption (%s): %w", pattern, errkind.ErrGitFailed)
		}
		return fmt.Errorf("git repack failed: %s", res.Stderr)
	}
	return nil
}

func (c *Controller) runPrune(ctx context.Context, repo string) error {
	providesAlternates, err := c.providesAlternates(repo)
	if err != nil {
		return err
	}
	expire, skip := PruneExpiry(providesAlternates, c.Cfg.Fsck.Precious, c.Cfg.Fsck.PruneExpire)
	if skip {
		return nil
	}
	res, err := c.Git.PruneExpire(ctx, repo, expire)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git prune --expire=%s failed: %s", expire, res.Stderr)
	}
	return nil
}

// providesAlternates reports whether repo sits directly inside a directory
// named "objstore", i.e. is an objstore repository whose objects other
// repos borrow. It does not inspect the repository's remotes or any other
// repo's alternates file.
func (c *Controller) providesAlternates(repo string) (bool, error) {
	info, err := os.Stat(filepath.Dir(repo))
	if err != nil {
		return false, nil
	}
	return info.Name() == "objstore", nil
}

func finish(row report.Row, start, now time.Time) report.Row {
	row.Duration = now.Sub(start)
	return row
}
