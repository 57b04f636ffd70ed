// Package logging builds the zap logger shared by the binaries.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development logger for dev environments and a JSON production
// logger otherwise.
func New(env string) (*zap.Logger, error) {
	if env == "dev" || env == "test" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Must is New that falls back to a no-op logger instead of failing.
func Must(env string) *zap.Logger {
	logger, err := New(env)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
