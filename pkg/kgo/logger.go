package kgo

import "github.com/sirupsen/logrus"

// LogLevel mirrors the teacher's LogLevel, ordered so callers can compare
// levels numerically.
type LogLevel int8

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "NONE"
	}
}

// Logger is implemented by anything that can sink structured log lines, the
// same shape the teacher's cfg.logger is invoked with throughout broker.go.
type Logger interface {
	Log(level LogLevel, msg string, keyvals ...interface{})
}

// nopLogger discards everything; it is the zero value used until a caller
// supplies WithLogger.
type nopLogger struct{}

func (nopLogger) Log(LogLevel, string, ...interface{}) {}

// logrusLogger adapts a *logrus.Logger to the Logger interface, the way the
// pack's logrus-based repo wires its own logging.
type logrusLogger struct {
	lvl LogLevel
	l   *logrus.Logger
}

// NewLogrusLogger returns a Logger backed by logrus, logging at lvl and
// below.
func NewLogrusLogger(lvl LogLevel) Logger {
	l := logrus.New()
	l.Level = logrus.DebugLevel // filtering by lvl happens in Log
	return &logrusLogger{lvl: lvl, l: l}
}

func (r *logrusLogger) Log(level LogLevel, msg string, keyvals ...interface{}) {
	if level > r.lvl || level == LogLevelNone {
		return
	}
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	entry := r.l.WithFields(fields)
	switch level {
	case LogLevelError:
		entry.Error(msg)
	case LogLevelWarn:
		entry.Warn(msg)
	case LogLevelInfo:
		entry.Info(msg)
	default:
		entry.Debug(msg)
	}
}
