// Package zap adapts a *zap.Logger to refcache.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/refcache"
	"go.uber.org/zap"
)

var _ refcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New names the logger "refcache" so its lines can be filtered.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("refcache")} }

func (z ZapLogger) Debug(msg string, f refcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f refcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f refcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f refcache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f refcache.Fields) []zap.Field {
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
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
