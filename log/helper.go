// Package log provides a unified logging interface for the plugr runtime.
// It wraps the Kratos logging system and provides convenient methods for
// different log levels.
package log

import (
	"os"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
)

// Level represents the logging level.
type Level int32

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If an application is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel
)

var (
	// Logger is the primary logging interface shared by the runtime packages.
	Logger log.Logger

	// helper wraps Logger with leveled formatting methods.
	helper *log.Helper

	// minLevel filters out messages below the configured level.
	minLevel atomic.Int32
)

func init() {
	Logger = log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
	)
	helper = log.NewHelper(Logger)
	minLevel.Store(int32(InfoLevel))
}

// SetLogger replaces the runtime logger. Intended for hosts that already
// carry their own Kratos logger configuration.
func SetLogger(l log.Logger) {
	if l == nil {
		return
	}
	Logger = l
	helper = log.NewHelper(l)
}

// SetLevel adjusts the minimum level emitted by the helper functions.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= minLevel.Load()
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) {
	if enabled(DebugLevel) {
		helper.Debugf(format, args...)
	}
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) {
	if enabled(InfoLevel) {
		helper.Infof(format, args...)
	}
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) {
	if enabled(WarnLevel) {
		helper.Warnf(format, args...)
	}
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) {
	if enabled(ErrorLevel) {
		helper.Errorf(format, args...)
	}
}

// Infow logs a message with structured key-value pairs at info level.
func Infow(msg string, kv ...any) {
	if enabled(InfoLevel) {
		helper.Infow(append([]any{"msg", msg}, kv...)...)
	}
}

// Errorw logs a message with structured key-value pairs at error level.
func Errorw(msg string, kv ...any) {
	if enabled(ErrorLevel) {
		helper.Errorw(append([]any{"msg", msg}, kv...)...)
	}
}
