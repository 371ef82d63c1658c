package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"k8s.io/klog/v2"
)

// Supported handler formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls how the process-wide logger is built.
type Options struct {
	// Format is either "text" or "json". Empty means text.
	Format string
	// Debug lowers the level to slog.LevelDebug.
	Debug bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a slog logger for the given options.
func New(opts Options) (*slog.Logger, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		handler = slog.NewTextHandler(out, handlerOpts)
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected %q or %q)", opts.Format, FormatText, FormatJSON)
	}

	return slog.New(handler), nil
}

// Setup builds the logger, installs it as the slog default and routes
// client-go's klog output through it.
func Setup(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	klog.SetSlogLogger(logger)
	return logger, nil
}
