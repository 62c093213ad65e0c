package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mricon/grokmirror-go/internal/bundle"
	"github.com/mricon/grokmirror-go/internal/manifest"
)

// bundleCmd wraps internal/bundle, grounded on
// original_source/grokmirror/bundle.py: generate clone.bundle files for
// CDN offload from a glob-selected, size-bucketed subset of the manifest.
type bundleCmd struct {
	commonFlags
	manifestPath string
	outDir       string
	gitArgs      string
	revListArgs  string
	maxSizeGiB   int64
	include      []string
}

func init() { Register(&bundleCmd{}) }

func (c *bundleCmd) Name() string        { return "bundle" }
func (c *bundleCmd) Description() string { return "generate clone.bundle files for use with \"repo\"" }

func (c *bundleCmd) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	c.register(fs)
	fs.StringVarP(&c.manifestPath, "manifest", "m", "", "location of the manifest to read (defaults to this replica's local manifest)")
	fs.StringVarP(&c.outDir, "outdir", "o", "", "location where to store bundle files (required)")
	fs.StringVarP(&c.gitArgs, "gitargs", "g", "-c core.compression=9", "extra args to pass to git")
	fs.StringVarP(&c.revListArgs, "revlistargs", "r", "--branches HEAD", "rev-list args to use")
	fs.Int64VarP(&c.maxSizeGiB, "maxsize", "s", 2, "maximum size of git repositories to bundle, in GiB")
	fs.StringSliceVarP(&c.include, "include", "i", []string{"*"}, "repositories to bundle (accepts shell globbing, repeatable)")
	return fs
}

func (c *bundleCmd) Run(ctx context.Context, args []string) error {
	if c.outDir == "" {
		return fmt.Errorf("-o/--outdir is required")
	}
	d, err := c.build()
	if err != nil {
		return err
	}

	manifestPath := c.manifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(d.Cfg.Core.Toplevel, ".grokmirror", "manifest.json")
	}
	m, err := manifest.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest %s: %w", manifestPath, err)
	}

	opts := bundle.Options{
		Toplevel:    d.Cfg.Core.Toplevel,
		OutDir:      c.outDir,
		GitArgs:     strings.Fields(c.gitArgs),
		RevListArgs: strings.Fields(c.revListArgs),
		MaxSizeMiB:  c.maxSizeGiB * 1024,
		Include:     c.include,
	}

	results, err := bundle.Generate(ctx, d.Git, d.Log, m, opts)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			d.Log.Error().Err(r.Err).Str("repo", r.Key).Msg("bundle generation failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("partial failure: %d repositories failed", failed)
	}
	return nil
}
