package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/gencache"
)

var _ gencache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New wraps a zap logger for use as a gencache.Logger.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l} }

func (z ZapLogger) Debug(msg string, f gencache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f gencache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f gencache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f gencache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f gencache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
