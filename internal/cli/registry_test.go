package cli

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct {
	ranWith []string
	flagVal string
}

func (f *fakeCommand) Name() string        { return "fake-test-command" }
func (f *fakeCommand) Description() string { return "a fake command for registry tests" }

func (f *fakeCommand) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(f.Name(), pflag.ContinueOnError)
	fs.StringVar(&f.flagVal, "thing", "", "a thing")
	return fs
}

func (f *fakeCommand) Run(ctx context.Context, args []string) error {
	f.ranWith = args
	return nil
}

func TestRegisterGetList(t *testing.T) {
	cmd := &fakeCommand{}
	Register(cmd)

	got, ok := Get("fake-test-command")
	require.True(t, ok)
	assert.Same(t, cmd, got)

	assert.Contains(t, List(), "fake-test-command")
}

func TestDispatchParsesFlagsAndPassesPositionalArgs(t *testing.T) {
	cmd := &fakeCommand{}
	Register(cmd)

	err := Dispatch(context.Background(), "fake-test-command", []string{"--thing", "value", "pos1", "pos2"})
	require.NoError(t, err)
	assert.Equal(t, "value", cmd.flagVal)
	assert.Equal(t, []string{"pos1", "pos2"}, cmd.ranWith)
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := Dispatch(context.Background(), "no-such-command", nil)
	require.Error(t, err)
}
