package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger writes JSON diagnostics to cfg.DebugLog. The terminal belongs to
// the UI, so without a debug log nothing is logged.
func newLogger(cfg appConfig) (*zap.Logger, error) {
	if cfg.DebugLog == "" {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DebugLog), 0o755); err != nil {
		return nil, fmt.Errorf("create debug log dir: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	zcfg.OutputPaths = []string{cfg.DebugLog}
	zcfg.ErrorOutputPaths = []string{cfg.DebugLog}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger for %q: %w", cfg.DebugLog, err)
	}
	return logger, nil
}
