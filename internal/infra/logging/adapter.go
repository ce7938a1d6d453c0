// Package logging adapts github.com/charmbracelet/log to ports.Logger.
package logging

import (
	"context"
	"io"
	"os"

	cblog "github.com/charmbracelet/log"

	"github.com/mdl-run/mdl/internal/ports"
)

// Options configures a Logger at construction time.
type Options struct {
	Level     string // debug|info|warn|error
	JSON      bool
	Writer    io.Writer
	Component string
}

// Logger wraps a charmbracelet/log instance behind ports.Logger.
type Logger struct {
	base *cblog.Logger
}

// New builds a configured Logger. A nil Writer defaults to stderr.
func New(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	base := cblog.NewWithOptions(w, cblog.Options{
		Level:           parseLevel(opts.Level),
		ReportTimestamp: true,
	})
	if opts.JSON {
		base.SetFormatter(cblog.JSONFormatter)
	}
	if opts.Component != "" {
		base = base.With("component", opts.Component)
	}

	return &Logger{base: base}
}

func parseLevel(level string) cblog.Level {
	switch level {
	case "debug":
		return cblog.DebugLevel
	case "warn":
		return cblog.WarnLevel
	case "error":
		return cblog.ErrorLevel
	default:
		return cblog.InfoLevel
	}
}

// With returns a derived logger carrying the supplied fields on every entry.
func (l *Logger) With(fields ...interface{}) ports.Logger {
	if l == nil || l.base == nil {
		return l
	}
	return &Logger{base: l.base.With(fields...)}
}

func (l *Logger) withCorrelation(ctx context.Context, fields []interface{}) []interface{} {
	if id := ports.CorrelationID(ctx); id != "" {
		fields = append(fields, "correlation_id", id)
	}
	return fields
}

// Debug implements ports.Logger.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(msg, l.withCorrelation(ctx, fields)...)
}

// Info implements ports.Logger.
func (l *Logger) Info(ctx context.Context, msg string, fields ...interface{}) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(msg, l.withCorrelation(ctx, fields)...)
}

// Warn implements ports.Logger.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...interface{}) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(msg, l.withCorrelation(ctx, fields)...)
}

// Error implements ports.Logger.
func (l *Logger) Error(ctx context.Context, msg string, fields ...interface{}) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Error(msg, l.withCorrelation(ctx, fields)...)
}
