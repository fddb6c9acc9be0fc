// Package obslog builds the structured logger shared by every component of
// the broker.
package obslog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured zap.Logger. When debug is true it
// switches to a development config with colorized levels.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	logger, err := cfg.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("obslog: cannot build logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything, for tests and for
// components constructed without an explicit logger.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Named returns a child logger scoped to one component, e.g. obslog.Named(l, "cache").
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return Nop().Named(name)
	}
	return l.Named(name)
}
