// Package logger wraps zap into the small set of helpers the rest of the
// service needs: a leveled, structured logger that can be tagged with a
// driver ID or request ID and carried through a context.Context.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper over zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

type ctxKey struct{}

// New builds a Logger at the given level ("debug", "info", "warn", "error")
// writing JSON when format is "json" and console-formatted text otherwise.
func New(level, format string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if format != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: l.Sugar()}, nil
}

// Default returns a development logger suitable for tests.
func Default() *Logger {
	l, _ := zap.NewDevelopment()
	return &Logger{SugaredLogger: l.Sugar()}
}

// WithDriverID returns a child logger tagged with the driver's identifier.
func (l *Logger) WithDriverID(driverID string) *Logger {
	return &Logger{SugaredLogger: l.With("driver_id", driverID)}
}

// WithRequestID returns a child logger tagged with a request correlation ID.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{SugaredLogger: l.With("request_id", requestID)}
}

// WithError returns a child logger with the error attached as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{SugaredLogger: l.With("error", err)}
}

// ToContext stores the logger in ctx for later retrieval via FromContext.
func ToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves a logger previously stored with ToContext, falling
// back to Default() when none is present.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
