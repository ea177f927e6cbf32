// Package logger provides the structured logger used across the funding engine.
package logger

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggerInterface is the structured-logging contract every component depends on.
// Every method takes a context so trace/span IDs can be attached by callers that
// carry them (see internal/apm), even though this implementation does not
// extract them itself.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Logger is the zap-backed implementation of LoggerInterface.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger writing to w at the given level. name identifies the
// service ("app" field); extra, when non-nil, is attached as one persistent
// field named "extra" (e.g. a struct of build metadata).
func New(w io.Writer, level Level, name string, extra any) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(w),
		level.zapLevel(),
	)

	fields := []zap.Field{zap.String("app", name)}
	if extra != nil {
		fields = append(fields, zap.Any("extra", extra))
	}

	base := zap.New(core).With(fields...)
	return &Logger{sugar: base.Sugar()}
}

func (l *Logger) Debug(_ context.Context, msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(_ context.Context, msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(_ context.Context, msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(_ context.Context, msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
