// Package logging provides the structured logger shared by every
// component of the core. It is a thin constructor around *zap.Logger —
// never a package-level singleton — so callers inject it explicitly,
// matching the teacher's constructor-injection convention.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap.Logger writing to stdout, for the
// process that wires the core together; tests use zap.NewNop() or an
// observer core directly rather than going through this constructor.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests and defaults.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Named returns component, falling back to a Nop logger if nil is passed,
// so collaborators can be constructed without a logger in tests.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(component)
}
