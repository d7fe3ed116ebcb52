package logging

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Config selects the go-logger level and output format.
type Config struct {
	Level  string // trace, debug, info, warn, error, fatal
	Format string // json (default), console, pretty
}

// GoLogger is a Provider backed by go-logger.
type GoLogger struct {
	root *glog.BaseLogger
}

// NewGoLogger builds a go-logger root logger from cfg.
func NewGoLogger(cfg Config) (*GoLogger, error) {
	var options []glog.Option
	if level := normalizeLevel(cfg.Level); level != "" {
		options = append(options, glog.WithLevel(level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		options = append(options, glog.WithLoggerTypeJSON())
	case "console":
		options = append(options, glog.WithLoggerTypeConsole())
	case "pretty":
		options = append(options, glog.WithLoggerTypePretty())
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}
	return &GoLogger{root: glog.NewLogger(options...)}, nil
}

// GetLogger returns a child logger named after the module.
func (p *GoLogger) GetLogger(name string) Logger {
	if p == nil || p.root == nil {
		return NoOp()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return wrap(p.root)
	}
	return wrap(p.root.GetLogger(name))
}

func wrap(inner glog.Logger) Logger {
	if inner == nil {
		return NoOp()
	}
	return &glogAdapter{inner: inner}
}

type glogAdapter struct {
	inner glog.Logger
}

func (l *glogAdapter) Trace(msg string, args ...any) { l.inner.Trace(msg, args...) }
func (l *glogAdapter) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *glogAdapter) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *glogAdapter) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *glogAdapter) Error(msg string, args ...any) { l.inner.Error(msg, args...) }
func (l *glogAdapter) Fatal(msg string, args ...any) { l.inner.Fatal(msg, args...) }

func (l *glogAdapter) WithFields(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	if fl, ok := l.inner.(glog.FieldsLogger); ok {
		return wrap(fl.WithFields(fields))
	}
	return l
}

func (l *glogAdapter) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	return wrap(l.inner.WithContext(ctx))
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "info":
		return glog.Info
	case "warn", "warning":
		return glog.Warn
	case "error":
		return glog.Error
	case "fatal":
		return glog.Fatal
	default:
		return ""
	}
}
