// Package logger provides the transport's single process-wide logging
// handler slot, plus helpers for carrying a logger through a
// [context.Context]. With no handler installed, logging is a no-op.
package logger

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Level orders the severities the transport may log at. It mirrors
// zerolog's own levels but is named the way the transport's own API
// describes them.
type Level int8

const (
	Debug Level = iota
	Information
	Warning
	Error
	Fatal
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Information:
		return zerolog.InfoLevel
	case Warning:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	case Fatal:
		return zerolog.FatalLevel
	default:
		return zerolog.NoLevel
	}
}

var (
	// ErrNilHandler is returned by SetHandler when called with a nil logger.
	ErrNilHandler = errors.New("logger: handler must not be nil")

	// ErrHandlerAlreadySet is returned by SetHandler when a handler is
	// already installed; callers must RemoveHandler first.
	ErrHandlerAlreadySet = errors.New("logger: a handler is already set")
)

var (
	mu      sync.RWMutex
	handler *zerolog.Logger
)

// SetHandler installs l as the process-wide log handler. It fails with
// ErrNilHandler if l is nil, and with ErrHandlerAlreadySet if a handler is
// already installed.
func SetHandler(l *zerolog.Logger) error {
	if l == nil {
		return ErrNilHandler
	}
	mu.Lock()
	defer mu.Unlock()
	if handler != nil {
		return ErrHandlerAlreadySet
	}
	handler = l
	return nil
}

// RemoveHandler uninstalls the current handler, if any. It is idempotent.
func RemoveHandler() {
	mu.Lock()
	defer mu.Unlock()
	handler = nil
}

// current returns the installed handler, or the no-op logger if none is set.
func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if handler == nil {
		return zerolog.Nop()
	}
	return *handler
}

type ctxKey struct{}

var loggerCtxKey = ctxKey{}

// WithContext attaches l to ctx, to be retrieved later by FromContext.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, l)
}

// FromContext returns the logger carried by ctx, if any; otherwise the
// process-wide handler, if one is set; otherwise a no-op logger. Log calls
// on the returned value never panic and never block the caller on handler
// failure (spec: "the log handler's own failures are suppressed").
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerCtxKey).(zerolog.Logger); ok {
		return l
	}
	return current()
}

// Log emits msg at severity lvl through the handler reachable from ctx,
// attaching fields as key/value pairs. An odd trailing field is ignored.
func Log(ctx context.Context, lvl Level, msg string, fields ...any) {
	e := FromContext(ctx).WithLevel(lvl.zerolog())
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, fields[i+1])
	}
	e.Msg(msg)
}
