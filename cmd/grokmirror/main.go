// Command grokmirror is the unified entry point for every grokmirror
// subcommand (spec.md §6): manifest, pull, fsck, bundle, and dumb-pull,
// each registered into internal/cli and dispatched through cobra.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mricon/grokmirror-go/internal/cli"
)

func main() {
	root := &cobra.Command{
		Use:           "grokmirror",
		Short:         "replicate and maintain git repository mirrors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	for _, name := range cli.List() {
		cmd, ok := cli.Get(name)
		if !ok {
			continue
		}
		root.AddCommand(wrap(cmd))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "grokmirror:", err)
		os.Exit(1)
	}
}

// wrap adapts a cli.Command, which owns its own pflag.FlagSet, into a
// cobra.Command. Flag parsing stays with the cli.Command's FlagSet via
// cli.Dispatch rather than cobra's own parser, so each subcommand keeps
// the exact flag surface it defines for itself.
func wrap(cmd cli.Command) *cobra.Command {
	c := &cobra.Command{
		Use:                cmd.Name(),
		Short:              cmd.Description(),
		DisableFlagParsing: true,
		RunE: func(c *cobra.Command, args []string) error {
			return cli.Dispatch(c.Context(), cmd.Name(), args)
		},
	}
	return c
}
