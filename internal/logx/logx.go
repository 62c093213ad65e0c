// Package logx builds the process-wide logger and threads it through
// component constructors instead of relying on a package-level global.
package logx

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger for the given verbosity.
//
// verbosity 0 is Info, 1 is Debug, 2+ is Trace, matching the CLI's -v/-vv/-vvv
// counting flag. When w is a terminal the logger renders through a
// colorable console writer; otherwise it emits compact JSON lines suitable
// for a log-shipping pipeline or a cron job redirecting to a file.
func New(w *os.File, verbosity int) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case verbosity >= 2:
		level = zerolog.TraceLevel
	case verbosity == 1:
		level = zerolog.DebugLevel
	}

	var out io.Writer = w
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		out = zerolog.ConsoleWriter{Out: colorable.NewColorable(w), TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests that do not
// care about log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
