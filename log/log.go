// Package log wraps sirupsen/logrus with the leveled, field-scoped
// logger the teacher's hub/executor and hub/route call sites expect
// (log.SetLevel, log.Debugln/Infoln/Warnln/Errorln), since that
// package itself wasn't part of the retrieved teacher file set.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors the four levels spec §6 configures via LOG_LEVEL.
type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
	LevelInfo  Level = "INFO"
	LevelDebug Level = "DEBUG"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	SetLevel(LevelInfo)
}

// SetLevel switches the global log level, the way the teacher's
// ApplyConfig does in response to a config reload.
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		base.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		base.SetLevel(logrus.WarnLevel)
	case LevelError:
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}
}

// Fields is the key/value set that With attaches to a Logger. The
// engines attach the client's remote address and the request path; no
// request id is generated.
type Fields = logrus.Fields

// Logger is the handle returned by With, scoping subsequent calls to
// a fixed set of fields.
type Logger struct {
	entry *logrus.Entry
}

// With opens a field-scoped logger.
func With(fields Fields) *Logger {
	return &Logger{entry: base.WithFields(fields)}
}

func (l *Logger) Debugln(args ...interface{}) { l.entry.Debugln(args...) }
func (l *Logger) Infoln(args ...interface{})  { l.entry.Infoln(args...) }
func (l *Logger) Warnln(args ...interface{})  { l.entry.Warnln(args...) }
func (l *Logger) Errorln(args ...interface{}) { l.entry.Errorln(args...) }

func Debugln(args ...interface{}) { base.Debugln(args...) }
func Infoln(args ...interface{})  { base.Infoln(args...) }
func Warnln(args ...interface{})  { base.Warnln(args...) }
func Errorln(args ...interface{}) { base.Errorln(args...) }
