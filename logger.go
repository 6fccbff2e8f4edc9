package memberdir

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func resolveLogger(logger logr.Logger) logr.Logger {
	if logger.GetSink() == nil {
		return logr.Discard()
	}
	return logger
}

// NewLogger builds a zap-backed logr.Logger. The returned sync func flushes buffered entries.
func NewLogger(config LogConfig) (logr.Logger, func() error, error) {
	var zapConfig zap.Config
	switch config.Format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	case "", "json":
		zapConfig = zap.NewProductionConfig()
	default:
		return logr.Logger{}, nil, fmt.Errorf("memberdir logger: unsupported format %q", config.Format)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(orDefault(config.Level, "info")))); err != nil {
		return logr.Logger{}, nil, fmt.Errorf("memberdir logger: invalid level %q: %w", config.Level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return logr.Logger{}, nil, fmt.Errorf("memberdir logger: build: %w", err)
	}
	return zapr.NewLogger(zapLogger).WithName("memberdir"), zapLogger.Sync, nil
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
