// Package zap adapts a *zap.Logger to swcache.Logger.
package zap

import (
	"io"
	"sort"

	"github.com/unkn0wn-root/swcache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ swcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New builds a JSON logger writing to w at the given level
// ("debug", "info", "warn", "error").
func New(w io.Writer, level string) (ZapLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return ZapLogger{}, err
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		lvl,
	)
	return ZapLogger{L: zap.New(core).Named("swcache")}, nil
}

func (z ZapLogger) Debug(msg string, f swcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f swcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f swcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f swcache.Fields) { z.L.Error(msg, zf(f)...) }

// Sync flushes buffered entries.
func (z ZapLogger) Sync() error { return z.L.Sync() }

func zf(f swcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
