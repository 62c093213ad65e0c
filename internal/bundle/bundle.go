// Package bundle implements the CDN-offload bundle generator of
// SPEC_FULL.md §11, grounded on original_source/grokmirror/bundle.py: it
// packs a glob-selected, size-bucketed subset of the manifest's
// repositories into git bundles an operator can park behind a CDN for
// "repo"-style clients that don't speak the grokmirror protocol.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/objstore"
)

// Options controls one bundle-generation pass.
type Options struct {
	Toplevel string
	OutDir   string

	// GitArgs are extra global flags passed to the "git bundle create"
	// invocation, e.g. "-c core.compression=9".
	GitArgs []string
	// RevListArgs select what goes into the bundle, e.g. "--branches HEAD".
	RevListArgs []string
	// MaxSizeMiB skips any repository (including its alternates) larger
	// than this, in mebibytes.
	MaxSizeMiB int64
	// Include is the fnmatch include list; a repo is bundled only if its
	// manifest key matches at least one pattern.
	Include []string
}

// Action records what Generate did with one repository.
type Action string

const (
	ActionGenerated        Action = "generated"
	ActionSkippedUnchanged Action = "skipped-unchanged"
	ActionSkippedTooLarge  Action = "skipped-too-large"
	ActionSkippedNoMatch   Action = "skipped-no-match"
	ActionFailed           Action = "failed"
)

// Result reports what happened to one manifest entry during a pass.
type Result struct {
	Key    string
	Action Action
	Err    error
}

const (
	bundleFileName      = "clone.bundle"
	fingerprintFileName = ".fingerprint"
)

// Generate walks m's repositories in key order, bundling every one that
// matches opts.Include and is not over opts.MaxSizeMiB, skipping any whose
// on-disk fingerprint file already matches the manifest's recorded
// fingerprint for that entry.
func Generate(ctx context.Context, git *gitutil.Invoker, log zerolog.Logger, m *manifest.Manifest, opts Options) ([]Result, error) {
	var results []Result
	for _, key := range m.SortedKeys() {
		entry := m.Repos[key]
		res := Result{Key: key}

		if !matchesInclude(key, opts.Include) {
			res.Action = ActionSkippedNoMatch
			results = append(results, res)
			continue
		}

		repo := strings.TrimPrefix(key, "/")
		fullpath := filepath.Join(opts.Toplevel, repo)
		bundleDir := filepath.Join(opts.OutDir, strings.ReplaceAll(repo, ".git", ""))
		if err := os.MkdirAll(bundleDir, 0755); err != nil {
			res.Action, res.Err = ActionFailed, fmt.Errorf("creating %s: %w", bundleDir, err)
			results = append(results, res)
			continue
		}

		bfile := filepath.Join(bundleDir, bundleFileName)
		bfprfile := filepath.Join(bundleDir, fingerprintFileName)
		fpr := fingerprintOf(entry)

		if existing, ok := readFingerprintFile(bfprfile); ok && fileExists(bfile) && existing == fpr {
			log.Debug().Str("repo", key).Msg("bundle unchanged, skipping")
			res.Action = ActionSkippedUnchanged
			results = append(results, res)
			continue
		}

		sizeKiB, err := repoSizeKiB(ctx, git, fullpath)
		if err != nil {
			res.Action, res.Err = ActionFailed, fmt.Errorf("sizing %s: %w", fullpath, err)
			results = append(results, res)
			continue
		}
		if opts.MaxSizeMiB > 0 && sizeKiB/1024 > opts.MaxSizeMiB {
			log.Info().Str("repo", key).Int64("size_mib", sizeKiB/1024).Int64("max_mib", opts.MaxSizeMiB).Msg("bundle skipped: too large")
			res.Action = ActionSkippedTooLarge
			results = append(results, res)
			continue
		}

		args := append([]string{}, opts.GitArgs...)
		args = append(args, "bundle", "create", bfile)
		args = append(args, opts.RevListArgs...)

		log.Info().Str("repo", key).Str("bundle", bfile).Msg("generating bundle")
		result, err := git.Run(ctx, fullpath, args, nil, nil, gitutil.TimeoutFullRepack)
		if err != nil {
			res.Action, res.Err = ActionFailed, fmt.Errorf("git bundle create %s: %w", fullpath, err)
			results = append(results, res)
			continue
		}
		if result.ExitCode != 0 {
			res.Action, res.Err = ActionFailed, fmt.Errorf("git bundle create %s failed: %s", fullpath, strings.TrimSpace(result.Stderr))
			results = append(results, res)
			continue
		}

		if err := os.WriteFile(bfprfile, []byte(fpr), 0644); err != nil {
			res.Action, res.Err = ActionFailed, fmt.Errorf("writing %s: %w", bfprfile, err)
			results = append(results, res)
			continue
		}
		res.Action = ActionGenerated
		results = append(results, res)
	}
	return results, nil
}

// matchesInclude reports whether key matches any include pattern, trying
// each pattern both as given and with the leading "/" stripped from both
// pattern and key, since manifest keys always start with "/" but operators
// often write include globs without it.
func matchesInclude(key string, include []string) bool {
	if len(include) == 0 {
		return true
	}
	bareKey := strings.TrimPrefix(key, "/")
	for _, pattern := range include {
		barePattern := strings.TrimPrefix(pattern, "/")
		if manifest.MatchesAny(key, []string{pattern, barePattern}) || manifest.MatchesAny(bareKey, []string{barePattern}) {
			return true
		}
	}
	return false
}

func fingerprintOf(e *manifest.Entry) string {
	if e == nil || e.Fingerprint == nil {
		return ""
	}
	return *e.Fingerprint
}

func readFingerprintFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// repoSizeKiB sums a repository's own object/pack size with its
// alternate's, recursively, mirroring bundle.py's get_repo_size.
func repoSizeKiB(ctx context.Context, git *gitutil.Invoker, repoPath string) (int64, error) {
	info, err := git.CountObjects(ctx, repoPath)
	if err != nil {
		return 0, err
	}
	total := info.SizeKiB + info.SizePackKiB

	altRoot, ok, err := alternateRepoRoot(repoPath)
	if err != nil {
		return 0, err
	}
	if ok {
		altSize, err := repoSizeKiB(ctx, git, altRoot)
		if err != nil {
			return 0, err
		}
		total += altSize
	}
	return total, nil
}

func alternateRepoRoot(repoPath string) (string, bool, error) {
	data, err := os.ReadFile(objstore.AlternatesFile(repoPath))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return "", false, nil
	}
	// The alternates file names the sibling's objects/ directory; its
	// repository root is one level up.
	return filepath.Dir(line), true, nil
}
