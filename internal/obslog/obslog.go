// Package obslog provides the single structured-logging entry point for
// the adapter, wrapping go.uber.org/zap the way kdlbs-kandev's services
// take a *zap.Logger field instead of calling the global logger.
// Diagnostics spec.md marks "logged but never propagated" (C1 append
// failures, a poisoned log mutex, unknown submission ids, unknown backend
// events) all go through a Logger obtained here.
package obslog

import (
	"sync"

	"go.uber.org/zap"
)

// Logger wraps a *zap.Logger. It adds no field helpers of its own: call
// sites pass zap fields directly, or attach them once with With.
type Logger struct {
	z *zap.Logger
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// New wraps an existing *zap.Logger. Passing nil is equivalent to New
// with zap.NewNop(), which is useful in tests that don't care about
// diagnostics.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Default returns a process-wide production logger, built once. Callers
// that want test-time silence should construct their own Logger via New
// and inject it instead of reaching for Default.
func Default() *Logger {
	defaultOnce.Do(func() {
		z, err := zap.NewProduction()
		if err != nil {
			z = zap.NewNop()
		}
		defaultLog = New(z)
	})
	return defaultLog
}

// Warn logs a recoverable diagnostic: a condition spec.md says to log
// and then ignore.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

// Error logs a diagnostic for a failure that dropped an event or a write
// but did not abort the actor loop.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, fields...)
}

// Info logs routine lifecycle events (session created, backend switched).
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, fields...)
}

// With returns a child Logger carrying the given fields on every entry,
// the way kandev's request-scoped loggers attach a request id once.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Sync flushes any buffered log entries; callers invoke this on shutdown.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
