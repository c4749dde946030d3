// Package commons holds small cross-cutting abstractions shared by every
// component: structured logging today, nothing else yet.
package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured-logging interface every component is handed at
// construction time instead of reaching for a package-level global. It
// mirrors the zap sugared-logger vocabulary: pairs of key/value fields after
// the message. The "w" variants take the same key/value fields and log
// exactly as their plain counterparts do.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Debugw(msg string, fields ...any)
	Infow(msg string, fields ...any)
	Warnw(msg string, fields ...any)
	Errorw(msg string, fields ...any)
	With(fields ...any) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger builds a production zap logger. When logPath is non-empty, logs
// are additionally rotated to disk via lumberjack; otherwise stderr only.
func NewLogger(level string, logPath string) (Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stderr), lvl),
	}
	if logPath != "" {
		rotator := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), lvl))
	}

	core := zapcore.NewTee(cores...)
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &zapLogger{s: zl.Sugar()}, nil
}

// NewNop returns a Logger that discards everything; used in tests.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debug(msg string, fields ...any)  { l.s.Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...any)   { l.s.Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...any)   { l.s.Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...any)  { l.s.Errorw(msg, fields...) }
func (l *zapLogger) Debugw(msg string, fields ...any) { l.s.Debugw(msg, fields...) }
func (l *zapLogger) Infow(msg string, fields ...any)  { l.s.Infow(msg, fields...) }
func (l *zapLogger) Warnw(msg string, fields ...any)  { l.s.Warnw(msg, fields...) }
func (l *zapLogger) Errorw(msg string, fields ...any) { l.s.Errorw(msg, fields...) }

func (l *zapLogger) With(fields ...any) Logger {
	return &zapLogger{s: l.s.With(fields...)}
}
