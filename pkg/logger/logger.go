package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level       string
	AddSource   bool
	Environment string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds the process logger: JSON in prod, text everywhere else. Every
// record carries the environment and service name.
func New(lvl string, addSource bool, environment string) *slog.Logger {
	return NewWithOptions(Options{
		Level:       lvl,
		AddSource:   addSource,
		Environment: environment,
	})
}

func NewWithOptions(o Options) *slog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(o.Level),
		AddSource: o.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(o.Environment) == "prod" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler).With(
		slog.String("service", "pool-balancer"),
		slog.String("environment", o.Environment),
	)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a config level name to a slog level, falling back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
