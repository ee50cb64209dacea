// Package logger wraps zap for structured logging across the orchestrator.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Logger wraps a *zap.Logger so components can attach fields without
// depending on zap directly in call sites that only log occasionally.
type Logger struct {
	z *zap.Logger
}

var defaultLogger atomic.Pointer[Logger]

// NewLogger builds a Logger from the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableStacktrace = true

	z, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{z: z}, nil
}

// SetDefault installs l as the process-wide default logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Default returns the process-wide default logger, or a no-op production
// logger if SetDefault was never called (useful in tests).
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	z, _ := zap.NewProduction()
	return &Logger{z: z}
}

// WithFields returns a child logger with the given structured fields attached
// to every subsequent entry.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Raw exposes the underlying *zap.Logger for packages that need full zap
// features (e.g. sugared loggers in tests).
func (l *Logger) Raw() *zap.Logger {
	return l.z
}
