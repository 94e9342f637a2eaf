// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package xlog is a terse key/value structured logger in the style of
// go-ethereum's log package, built on slog with TTY-aware coloring.
package xlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var root = newLogger(os.Stderr)

// Logger is a small facade over slog.Logger exposing the Info/Warn/Error/
// Debug(msg, key, val, ...) call shape used throughout this codebase.
type Logger struct {
	handler slog.Handler
}

func newLogger(w io.Writer) *Logger {
	out := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{handler: h}
}

// SetOutput redirects the package-level root logger to w.
func SetOutput(w io.Writer) {
	root = newLogger(w)
}

func (l *Logger) log(level slog.Level, msg string, kv []interface{}) {
	r := slog.NewRecord(time.Now(), level, msg, 0)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if key == "" {
			key = fmt.Sprintf("%v", kv[i])
		}
		r.Add(key, kv[i+1])
	}
	_ = l.handler.Handle(context.Background(), r)
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(slog.LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(slog.LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(slog.LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(slog.LevelError, msg, kv) }

// Package-level convenience functions mirroring the teacher's `log.Info(...)`
// call sites verbatim.
func Debug(msg string, kv ...interface{}) { root.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { root.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { root.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { root.Error(msg, kv...) }
