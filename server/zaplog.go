package server

import (
	"fmt"

	"github.com/godzie44/go-echo/reactor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	l *zap.Logger
}

//NewZapLogger adapts l to the key/value Logger used across the module.
//"level" and "msg" pick the zap level and message, other pairs become fields.
func NewZapLogger(l *zap.Logger) reactor.Logger {
	return &zapLogger{l: l}
}

func (z *zapLogger) Log(keyvals ...interface{}) error {
	level := zapcore.InfoLevel
	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)

	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var val interface{} = "(MISSING)"
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}

		switch key {
		case "level":
			if err := level.Set(fmt.Sprint(val)); err != nil {
				return err
			}
		case "msg":
			msg = fmt.Sprint(val)
		case "err":
			if err, ok := val.(error); ok {
				fields = append(fields, zap.Error(err))
				continue
			}
			fields = append(fields, zap.Any(key, val))
		default:
			fields = append(fields, zap.Any(key, val))
		}
	}

	if ce := z.l.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
	return nil
}
