// Package logging builds the structured logger of the agent.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Options is the settings of a logger.
type Options struct {
	// Level is a zerolog level name like "info" or "debug".
	Level string

	// Format is one of "auto", "json", or "console".
	// "auto" uses console format only if the writer is a terminal.
	Format string
}

// New creates a logger that writes to w.
func New(w io.Writer, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), outposterr.New(api.ErrInvalidConfig, err, "log level")
		}
	}

	var console bool
	switch opts.Format {
	case "", "auto":
		console = isTerminal(w)
	case "json":
	case "console":
		console = true
	default:
		return zerolog.Nop(), outposterr.New(api.ErrInvalidConfig, nil, "unsupported log format: %q", opts.Format)
	}

	if console {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// isTerminal reports whether w is a file that connected to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ServiceContext adds the identity of a service to a log context.
func ServiceContext(c zerolog.Context, svc api.Service) zerolog.Context {
	return c.
		Str("namespace", svc.Namespace).
		Str("service", svc.ID).
		Str("url", svc.URL)
}

// Duration formats d for human friendly log messages, like "1.5s".
func Duration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return fmt.Sprint(d.Round(time.Millisecond))
}
