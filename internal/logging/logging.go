package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	mu     sync.Mutex
)

// New builds a zap logger for the given environment and level. Unknown levels
// fall back to info.
func New(appEnv, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if appEnv == "development" {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Init replaces the process logger.
func Init(appEnv, level string) (*zap.Logger, error) {
	l, err := New(appEnv, level)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return l, nil
}

// GetLogger returns the process logger, building a production one on first use.
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		logger = l
	}
	return logger
}
