package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mricon/grokmirror-go/internal/fsckctl"
	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/report"
)

// fsckCmd wraps internal/fsckctl.Controller, grounded on
// original_source/grokmirror/fsck.py: a single pass of connectivity
// checks, staggered repacks, and fork-family objstore maintenance over
// every repository known from the local manifest (spec.md §4.5).
type fsckCmd struct {
	commonFlags
	force    bool
	connOnly bool
}

func init() { Register(&fsckCmd{}) }

func (c *fsckCmd) Name() string        { return "fsck" }
func (c *fsckCmd) Description() string { return "run one fsck/repack maintenance pass" }

func (c *fsckCmd) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	c.register(fs)
	fs.BoolVar(&c.force, "force", false, "check every repository in this pass, ignoring the staggered schedule")
	fs.BoolVar(&c.connOnly, "connectivity-only", false, "only check connectivity when running fsck checks")
	return fs
}

func (c *fsckCmd) Run(ctx context.Context, args []string) error {
	d, err := c.build()
	if err != nil {
		return err
	}

	toplevel := d.Cfg.Core.Toplevel
	localPath := filepath.Join(toplevel, ".grokmirror", "manifest.json")
	local, err := manifest.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading local manifest %s: %w", localPath, err)
	}

	var repoPaths []string
	if len(args) > 0 {
		repoPaths = args
	} else {
		for _, key := range local.SortedKeys() {
			repoPaths = append(repoPaths, filepath.Join(toplevel, strings.TrimPrefix(key, "/")))
		}
	}

	mail := newSMTPMailer("grokmirror@" + hostname())
	ctrl := fsckctl.NewController(d.Cfg, d.Git, d.Obj, d.Log, mail)
	ctrl.Force = c.force
	ctrl.ConnOnly = c.connOnly

	rows, err := ctrl.RunPass(ctx, toplevel, repoPaths)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		fmt.Fprintln(os.Stdout, report.Table(rows))
	}
	if countFailed(rows) > 0 {
		return fmt.Errorf("partial failure: %d repositories failed", countFailed(rows))
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
