// Package observability wires the gateway's ambient logging and metrics
// stack, grounded on internal/observability/logger.go and metrics.go.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap.Logger whose encoding and level follow env and
// format, mirroring internal/observability/logger.go's
// NewLogger(cfg, appEnv) choosing between production and development
// presets.
func NewLogger(appEnv, level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(appEnv, "production") || strings.EqualFold(appEnv, "prod") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if format != "" {
		cfg.Encoding = format
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// NewNopLogger returns a logger that discards everything, for tests and
// fallback paths, mirroring internal/observability/logger.go's
// NewNopLogger().
func NewNopLogger() *zap.Logger {
	return zap.NewNop()
}
