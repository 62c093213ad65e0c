package cli

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/mricon/grokmirror-go/internal/dumbpull"
)

// dumbPullCmd wraps internal/dumbpull, grounded on
// original_source/grok-dumb-pull.py: fetch remotes in repositories not
// managed by any grokmirror manifest.
type dumbPullCmd struct {
	commonFlags
	svn            bool
	remotes        []string
	postUpdateHook string
}

func init() { Register(&dumbPullCmd{}) }

func (c *dumbPullCmd) Name() string        { return "dumb-pull" }
func (c *dumbPullCmd) Description() string { return "fetch remotes in repositories not managed by grokmirror" }

func (c *dumbPullCmd) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	c.register(fs)
	fs.BoolVarP(&c.svn, "svn", "s", false, "the remotes for these repositories are subversion")
	fs.StringArrayVarP(&c.remotes, "remote-names", "r", nil, "only fetch remotes matching this name (accepts shell globbing, repeatable)")
	fs.StringVarP(&c.postUpdateHook, "post-update-hook", "u", "", "run this hook after each repository that actually updated")
	return fs
}

func (c *dumbPullCmd) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("you must provide at least a path to the repos to pull")
	}
	d, err := c.build()
	if err != nil {
		return err
	}

	results, err := dumbpull.Run(ctx, d.Git, d.Log, dumbpull.Options{
		Paths:          args,
		Remotes:        c.remotes,
		SVN:            c.svn,
		PostUpdateHook: c.postUpdateHook,
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			d.Log.Error().Err(r.Err).Str("repo", r.Path).Msg("dumb-pull failed")
		} else if r.Changed {
			d.Log.Info().Str("repo", r.Path).Msg("new content pulled")
		}
	}
	if failed > 0 {
		return fmt.Errorf("partial failure: %d repositories failed", failed)
	}
	return nil
}
