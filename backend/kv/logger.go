package kv

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logging to slog.
// Badger's info messages are chatty, so they are logged at debug level.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(message(format, args))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(message(format, args))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(message(format, args))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(message(format, args))
}

func message(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
