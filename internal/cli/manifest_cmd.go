package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/manigen"
)

// manifestCmd wraps internal/manigen, grounded on
// original_source/grok-manifest.py: (re)generate the origin-side manifest
// by walking the configured toplevel.
type manifestCmd struct {
	commonFlags
	manifestPath    string
	toplevel        string
	useNow          bool
	checkExportOk   bool
	purge           bool
	remove          bool
	pretty          bool
	ignorePaths     []string
	permissionsOctal string
}

func init() { Register(&manifestCmd{}) }

func (c *manifestCmd) Name() string        { return "manifest" }
func (c *manifestCmd) Description() string { return "generate or update the origin-side repository manifest" }

func (c *manifestCmd) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	c.register(fs)
	fs.StringVarP(&c.manifestPath, "manifest", "m", "", "location of manifest.js[.gz] (required)")
	fs.StringVarP(&c.toplevel, "toplevel", "t", "", "top dir where all repositories reside (defaults to [core] toplevel)")
	fs.BoolVarP(&c.useNow, "use-now", "n", false, "use current timestamp instead of parsing commits")
	fs.BoolVarP(&c.checkExportOk, "check-export-ok", "e", false, "export only repositories marked git-daemon-export-ok")
	fs.BoolVarP(&c.purge, "purge", "p", false, "purge deleted git repositories from the manifest")
	fs.BoolVarP(&c.remove, "remove", "x", false, "remove repositories passed as arguments from the manifest")
	fs.BoolVarP(&c.pretty, "pretty", "y", false, "pretty-print the manifest (sort keys, indent)")
	fs.StringSliceVarP(&c.ignorePaths, "ignore-paths", "i", nil, "ignore paths matching this glob when walking (repeatable)")
	fs.StringVarP(&c.permissionsOctal, "manifest-permissions", "f", "0644", "file permissions of the manifest, in octal")
	return fs
}

func (c *manifestCmd) Run(ctx context.Context, args []string) error {
	if c.manifestPath == "" {
		return fmt.Errorf("-m/--manifest is required")
	}
	perm, err := strconv.ParseUint(c.permissionsOctal, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid --manifest-permissions %q: %w", c.permissionsOctal, err)
	}

	d, err := c.build()
	if err != nil {
		return err
	}

	toplevel := c.toplevel
	if toplevel == "" {
		toplevel = d.Cfg.Core.Toplevel
	}

	existing, err := manifest.ReadFile(c.manifestPath)
	if err != nil {
		existing = manifest.New("1.0")
	}

	if c.remove && len(args) > 0 {
		for _, path := range args {
			key := manigen.KeyFor(toplevel, path)
			if _, ok := existing.Repos[key]; ok {
				delete(existing.Repos, key)
				d.Log.Info().Str("repo", key).Msg("removed from manifest")
			} else {
				d.Log.Info().Str("repo", key).Msg("not present in manifest")
			}
		}
		if err := manifest.WriteFile(c.manifestPath, existing, c.pretty); err != nil {
			return err
		}
		return os.Chmod(c.manifestPath, os.FileMode(perm))
	}

	opts := manigen.Options{
		Toplevel:      toplevel,
		Version:       "1.0",
		IgnoreGlobs:   append(append([]string{}, d.Cfg.Core.IgnoreGlobs...), c.ignorePaths...),
		CheckExportOk: c.checkExportOk,
		NoFingerprint: c.useNow,
		PruneMissing:  c.purge,
	}

	m, err := manigen.Generate(ctx, d.Git, opts, existing)
	if err != nil {
		return err
	}
	if err := manifest.WriteFile(c.manifestPath, m, c.pretty); err != nil {
		return err
	}
	if err := os.Chmod(c.manifestPath, os.FileMode(perm)); err != nil {
		return err
	}
	d.Log.Info().Int("repos", len(m.Repos)).Str("manifest", c.manifestPath).Msg("manifest written")
	return nil
}
