// internal/logging/logger.go
//
// Structured logging contract for the relay. The storage layer never
// owns a process-wide logger; every component receives a Logger at
// construction and embedders decide where the lines go.

package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sink accepted by every relay component. Keys and
// values alternate in args, slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Nop returns a Logger that discards everything. Components treat a
// nil Logger the same way, but passing Nop keeps call sites explicit.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Zap adapts a zap logger to the Logger contract.
func Zap(l *zap.Logger) Logger {
	if l == nil {
		return Nop()
	}
	return &zapAdapter{sugar: l.Sugar()}
}

type zapAdapter struct {
	sugar *zap.SugaredLogger
}

func (z *zapAdapter) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *zapAdapter) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *zapAdapter) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *zapAdapter) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// New builds the default zap-backed Logger from a level and format.
// Level is one of debug|info|warn|error, format json|console.
func New(level, format string) (Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = format
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return Zap(base), nil
}

// OrNop returns l unchanged when non-nil and a no-op sink otherwise.
// Constructors use it so callers may pass nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
