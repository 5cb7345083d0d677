// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Options controls logger construction.
type Options struct {
	Verbose bool
	// Quiet drops info messages. The interactive interview uses it so log
	// lines do not interleave with streamed answers.
	Quiet bool
	// Output defaults to stderr.
	Output io.Writer
}

// New builds a slog logger backed by charmbracelet/log. Terminal output is
// colored text; anything else is JSON.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handler := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
	})

	switch {
	case opts.Verbose:
		handler.SetLevel(charmlog.DebugLevel)
	case opts.Quiet:
		handler.SetLevel(charmlog.WarnLevel)
	default:
		handler.SetLevel(charmlog.InfoLevel)
	}

	if !isTerminal(out) {
		handler.SetFormatter(charmlog.JSONFormatter)
	}

	return slog.New(handler)
}

// Setup installs New(opts) as the default slog logger.
func Setup(opts Options) {
	slog.SetDefault(New(opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
