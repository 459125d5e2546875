package logger

import (
	"context"
	"fmt"
)

// Leveled adapts a Logger to the key/value leveled interface used by HTTP
// client libraries such as go-retryablehttp.
type Leveled struct {
	L Logger
}

// NewLeveled wraps l. A nil l falls back to the global logger.
func NewLeveled(l Logger) *Leveled {
	if l == nil {
		l = Get()
	}
	return &Leveled{L: l}
}

func (a *Leveled) Error(msg string, keysAndValues ...interface{}) {
	a.L.Error(context.Background(), msg, kvFields(keysAndValues)...)
}

func (a *Leveled) Info(msg string, keysAndValues ...interface{}) {
	a.L.Info(context.Background(), msg, kvFields(keysAndValues)...)
}

func (a *Leveled) Debug(msg string, keysAndValues ...interface{}) {
	a.L.Debug(context.Background(), msg, kvFields(keysAndValues)...)
}

func (a *Leveled) Warn(msg string, keysAndValues ...interface{}) {
	a.L.Warn(context.Background(), msg, kvFields(keysAndValues)...)
}

// kvFields pairs up alternating keys and values. A dangling key gets a nil value.
func kvFields(kv []interface{}) []Field {
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		var val interface{}
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		fields = append(fields, Any(key, val))
	}
	return fields
}
