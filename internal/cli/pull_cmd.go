package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/mricon/grokmirror-go/internal/manifest"
	"github.com/mricon/grokmirror-go/internal/pull"
	"github.com/mricon/grokmirror-go/internal/report"
)

// pullCmd wraps internal/pull.Engine, grounded on
// original_source/grokmirror/pull.py: one-shot or daemon-mode replication
// against the configured origin.
type pullCmd struct {
	commonFlags
	daemon       bool
	wait         bool
	waitInterval time.Duration
}

func init() { Register(&pullCmd{}) }

func (c *pullCmd) Name() string        { return "pull" }
func (c *pullCmd) Description() string { return "fetch the origin manifest and bring this replica into line" }

func (c *pullCmd) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	c.register(fs)
	fs.BoolVarP(&c.daemon, "daemon", "d", false, "run continuously on [pull] refresh, instead of a single pass")
	fs.BoolVarP(&c.wait, "wait-for-manifest", "w", false, "wait for the local manifest file to appear/stabilize before starting")
	fs.DurationVar(&c.waitInterval, "wait-poll-interval", 500*time.Millisecond, "poll interval used by --wait-for-manifest")
	return fs
}

func (c *pullCmd) Run(ctx context.Context, args []string) error {
	d, err := c.build()
	if err != nil {
		return err
	}

	engine := pull.NewEngine(d.Cfg, d.Git, d.Obj, d.Log)

	if c.wait {
		local := engine.LocalManifestPath()
		if err := manifest.WaitFor(ctx, local, c.waitInterval); err != nil {
			return fmt.Errorf("waiting for local manifest: %w", err)
		}
	}

	if c.daemon {
		return engine.RunDaemon(ctx)
	}

	rows, err := engine.RunOnce(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		fmt.Fprintln(os.Stdout, report.Table(rows))
	}
	for _, row := range rows {
		if row.Err != nil {
			return fmt.Errorf("partial failure: %d repositories failed", countFailed(rows))
		}
	}
	return nil
}

func countFailed(rows []report.Row) int {
	n := 0
	for _, r := range rows {
		if r.Err != nil {
			n++
		}
	}
	return n
}
