package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelNotice sits between INFO and WARN. It is used for per-action output
// (COPY, RENAME, DELETE lines) that should be visible by default but is
// noisier than lifecycle INFO messages.
const LevelNotice = slog.Level(2)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var defaultLogger *slog.Logger
var minLevel = new(slog.LevelVar)
var quietMode atomic.Bool // Use an atomic bool for safe concurrent reads.

// renameLevel maps the custom NOTICE level onto a readable label in the
// text output; slog would otherwise print it as "INFO+2".
func renameLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

func newDispatchLogger(stdout, stderr io.Writer) *slog.Logger {
	stdoutHandler := slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       minLevel,
		ReplaceAttr: renameLevel,
	})
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:       slog.LevelWarn,
		ReplaceAttr: renameLevel,
	})
	return slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	})
}

func init() {
	minLevel.Set(slog.LevelInfo)
	defaultLogger = newDispatchLogger(os.Stdout, os.Stderr)
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// Both streams are merged into the provided writer.
func SetOutput(w io.Writer) {
	// When redirecting output for tests, ensure quiet mode is off
	// so that all levels are written to the provided writer.
	quietMode.Store(false)
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       minLevel,
		ReplaceAttr: renameLevel,
	}))
}

// SetLevel sets the minimum level written to stdout. Warnings and errors
// always go to stderr regardless of this setting.
func SetLevel(level slog.Level) {
	minLevel.Set(level)
}

// ParseLevel converts a level name from configuration into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "notice":
		return LevelNotice, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (expected debug, info, notice, warn or error)", name)
	}
}

// SetQuiet enables or disables quiet mode for the global logger.
// In quiet mode, INFO and NOTICE level logs are suppressed.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet returns true if the global logger is in quiet mode.
func IsQuiet() bool {
	return quietMode.Load()
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	defaultLogger.Info(msg, args...)
}

// Notice logs a per-action message at the NOTICE level.
func Notice(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
