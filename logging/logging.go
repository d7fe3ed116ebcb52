// Package logging defines the leveled logger used across texpub and adapts
// github.com/goliatone/go-logger to it.
package logging

import (
	"context"
	"maps"
)

// Logger is the leveled logging contract. Arguments after the message are
// key/value pairs.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// Provider hands out named loggers.
type Provider interface {
	GetLogger(name string) Logger
}

// FieldsLogger is implemented by loggers that can carry persistent fields.
type FieldsLogger interface {
	WithFields(fields map[string]any) Logger
}

const rootModule = "texpub"

// ModuleLogger returns the logger for module with a "module" field attached.
// A nil provider yields a no-op logger.
func ModuleLogger(provider Provider, module string) Logger {
	if module == "" {
		module = rootModule
	}
	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}
	return WithFields(logger, map[string]any{"module": module})
}

// WithFields attaches fields when the logger supports it and returns the
// logger unchanged otherwise.
func WithFields(logger Logger, fields map[string]any) Logger {
	if logger == nil || len(fields) == 0 {
		return logger
	}
	if fl, ok := logger.(FieldsLogger); ok {
		copied := make(map[string]any, len(fields))
		maps.Copy(copied, fields)
		return fl.WithFields(copied)
	}
	return logger
}

// NoOp returns a logger that discards every entry.
func NoOp() Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) Logger   { return n }
func (n noopLogger) WithContext(context.Context) Logger { return n }
