package util

import (
	"fmt"

	"github.com/pion/logging"
)

// pionLogger forwards pion's scoped leveled logs to the pterm logger.
// Trace and Debug are only emitted when debug logging is enabled.
type pionLogger struct {
	scope string
}

var _ logging.LeveledLogger = (*pionLogger)(nil)

func (l *pionLogger) line(msg string) string {
	return fmt.Sprintf("[pion/%s] %s", l.scope, msg)
}

func (l *pionLogger) Trace(msg string) {
	if DebugEnabled() {
		LogDebug("%s", l.line(msg))
	}
}

func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.Trace(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Debug(msg string) {
	if DebugEnabled() {
		LogDebug("%s", l.line(msg))
	}
}

func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Info(msg string) {
	if DebugEnabled() {
		LogInfo("%s", l.line(msg))
	}
}

func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Warn(msg string)                           { LogWarning("%s", l.line(msg)) }
func (l *pionLogger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Error(msg string)                          { LogError("%s", l.line(msg)) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }

// PionLoggerFactory builds pion loggers that write through pterm.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{scope: scope}
}
