// Package logger builds the service zap logger: JSON to a rotated file and
// human readable output to stdout.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logLevel = zap.NewAtomicLevel()

// NewLogger creates a logger writing to dir/<serviceName>.log. An empty dir
// logs to stdout only.
func NewLogger(serviceName, dir string) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stdout),
		logLevel,
	)
	if dir == "" {
		return zap.New(consoleCore, zap.AddCaller()).With(zap.String("service", serviceName)), nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, serviceName+".log"),
		MaxSize:    200, // megabytes
		MaxBackups: 7,
		MaxAge:     7, // days
		Compress:   true,
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotated), logLevel)

	core := zapcore.NewTee(fileCore, consoleCore)
	return zap.New(core, zap.AddCaller()).With(zap.String("service", serviceName)), nil
}

// SetLogLevel changes the level of every logger built by NewLogger.
func SetLogLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logLevel.SetLevel(lvl)
	return nil
}

// Level returns the current level.
func Level() zapcore.Level {
	return logLevel.Level()
}
