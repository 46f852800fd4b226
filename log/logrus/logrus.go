package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/gencache"
)

var _ gencache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps a logrus entry for use as a gencache.Logger.
func New(e *logrus.Entry) LogrusLogger { return LogrusLogger{E: e} }

func (l LogrusLogger) Debug(msg string, f gencache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f gencache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f gencache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f gencache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
