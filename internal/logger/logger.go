// Package logger configures the process-wide slog logger and carries a
// request-scoped logger through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LevelNone suppresses all output.
const LevelNone = slog.Level(100)

// ParseLogLevel maps debug|info|warn|error|none onto a slog level.
// Unknown values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "off":
		return LevelNone
	default:
		return slog.LevelInfo
	}
}

// InitLogger builds the application logger and installs it as the slog
// default. dev and test environments get coloured text output on stderr,
// everything else gets JSON on stdout.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var l *slog.Logger
	switch environment {
	case "dev", "test":
		l = New(os.Stderr, level, false)
	default:
		l = New(os.Stdout, level, true)
	}
	slog.SetDefault(l)
	return l
}

// New returns a logger writing to w without touching the slog default.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	if level >= LevelNone {
		return slog.New(slog.DiscardHandler)
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	attrsKey
)

// logAttrs collects attributes added while a request is being served so the
// final access log line can include them.
type logAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// ContextWithLogger stores l and a fresh attribute collector in ctx.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, loggerKey, l)
	return context.WithValue(ctx, attrsKey, &logAttrs{})
}

// ContextRequestLogger returns the request logger, or the default logger
// when ctx carries none.
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ContextWithLogAttrs appends attributes to the request's final log line.
// It is a no-op on contexts not prepared by ContextWithLogger.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	holder, ok := ctx.Value(attrsKey).(*logAttrs)
	if !ok {
		return
	}
	holder.mu.Lock()
	holder.attrs = append(holder.attrs, attrs...)
	holder.mu.Unlock()
}

// ContextLogAttrs returns a copy of the collected attributes.
func ContextLogAttrs(ctx context.Context) []slog.Attr {
	holder, ok := ctx.Value(attrsKey).(*logAttrs)
	if !ok {
		return nil
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return append([]slog.Attr(nil), holder.attrs...)
}
