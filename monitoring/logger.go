package monitoring

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the service logger. With an empty file path it logs
// JSON to stderr; otherwise it tees to a size-rotated log file.
func NewLogger(level, file string) (*zap.Logger, error) {
	parsed := zapcore.InfoLevel
	if level != "" {
		var err error
		parsed, err = zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	if file == "" {
		return config.Build()
	}

	encoder := zapcore.NewJSONEncoder(config.EncoderConfig)
	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
	})
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, rotated, config.Level),
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), config.Level),
	)
	return zap.New(core), nil
}
