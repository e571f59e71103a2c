// Package logging provides the structured logger every other package in
// this module calls through. It wraps zerolog so call sites stay a flat
// (message, category, key, value, ...) shape instead of a builder chain.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Category tags a log line with the subsystem that produced it.
type Category string

const (
	Slot        Category = "slot"
	Commit      Category = "commit"
	Aggregation Category = "aggregation"
	Hub         Category = "hub"
	Unit        Category = "unit"
)

var std = New(true)

// Logger is the package-level structured logger. Construct one with New
// and assign it to a unit/hub explicitly; the std logger backs the
// package-level Info/Debug/Warn/Error helpers used for quick call sites.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger. Pretty enables a human-readable console writer;
// otherwise output is newline-delimited JSON suitable for log aggregation.
func New(pretty bool) *Logger {
	var w zerolog.ConsoleWriter
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		zl = zerolog.New(w).With().Timestamp().Logger()
	}
	return &Logger{zl: zl}
}

func (l *Logger) log(level zerolog.Level, msg string, cat Category, kv []interface{}) {
	ev := l.zl.WithLevel(level).Str("category", string(cat))
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

func (l *Logger) Info(msg string, cat Category, kv ...interface{})  { l.log(zerolog.InfoLevel, msg, cat, kv) }
func (l *Logger) Debug(msg string, cat Category, kv ...interface{}) { l.log(zerolog.DebugLevel, msg, cat, kv) }
func (l *Logger) Warn(msg string, cat Category, kv ...interface{})  { l.log(zerolog.WarnLevel, msg, cat, kv) }
func (l *Logger) Error(msg string, cat Category, kv ...interface{}) { l.log(zerolog.ErrorLevel, msg, cat, kv) }

// SetDefault replaces the logger backing the package-level helpers below.
func SetDefault(l *Logger) { std = l }

func Info(msg string, cat Category, kv ...interface{})  { std.Info(msg, cat, kv...) }
func Debug(msg string, cat Category, kv ...interface{}) { std.Debug(msg, cat, kv...) }
func Warn(msg string, cat Category, kv ...interface{})  { std.Warn(msg, cat, kv...) }
func Error(msg string, cat Category, kv ...interface{}) { std.Error(msg, cat, kv...) }
