// Package cli provides the command registry grokmirror's subcommands
// register into, in the teacher's Command/registry/Runner shape, adapted
// to parse flags with github.com/spf13/pflag instead of a hand-rolled
// argument splitter.
package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/pflag"
)

// Command is one grokmirror subcommand: manifest, pull, fsck, bundle, or
// dumb-pull (spec.md §6).
type Command interface {
	// Name returns the subcommand name, e.g. "pull".
	Name() string
	// Description is a one-line summary shown in usage.
	Description() string
	// Flags returns the flag set the command accepts, registered by the
	// command itself so each owns its own flag definitions.
	Flags() *pflag.FlagSet
	// Run executes the command with its flags already parsed.
	Run(ctx context.Context, args []string) error
}

var registry = make(map[string]Command)

// Register adds a command to the registry, used by each subcommand's
// package init.
func Register(cmd Command) {
	registry[cmd.Name()] = cmd
}

// Get looks up a registered command by name.
func Get(name string) (Command, bool) {
	cmd, ok := registry[name]
	return cmd, ok
}

// List returns every registered command name in sorted order.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses argv against the named command's flag set and runs it.
func Dispatch(ctx context.Context, name string, argv []string) error {
	cmd, ok := Get(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	fs := cmd.Flags()
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("parsing flags for %s: %w", name, err)
	}
	return cmd.Run(ctx, fs.Args())
}
