// Package logger is the process-wide structured logger. It wraps a single
// zap logger so call sites stay one-liners: event records go through
// InfoJ, WarnJ and ErrorJ.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = build("json")
)

func build(format string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Configure swaps the encoder ("json" or "console") and level.
func Configure(format, lvl string) error {
	if format != "" && format != "json" && format != "console" {
		return fmt.Errorf("logger: unknown format %q", format)
	}
	if err := SetLevel(lvl); err != nil {
		return err
	}
	if format == "" {
		return nil
	}
	l := build(format)
	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// SetLevel accepts debug, info, warn or error. Empty keeps the current level.
func SetLevel(lvl string) error {
	if lvl == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	level.SetLevel(l)
	return nil
}

// Replace installs l as the process logger. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	old := base
	base = l.WithOptions(zap.AddCallerSkip(1))
	mu.Unlock()
	return func() {
		mu.Lock()
		base = old
		mu.Unlock()
	}
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Warn(msg string) { current().Warn(msg) }

// InfoJ logs an event record. Keys are emitted in sorted order by zap's
// map encoder, which keeps records diffable.
func InfoJ(event string, fields map[string]any) {
	current().Info(event, zap.Any("fields", fields))
}

func WarnJ(event string, fields map[string]any) {
	current().Warn(event, zap.Any("fields", fields))
}

func ErrorJ(event string, fields map[string]any) {
	current().Error(event, zap.Any("fields", fields))
}

// Sync flushes buffered entries. Call once on shutdown.
func Sync() { _ = current().Sync() }
