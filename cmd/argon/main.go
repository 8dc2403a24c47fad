// Package main is the entry point for the argon CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/pinehappi/argon/cmd/argon/app"
	"github.com/pinehappi/argon/internal/config"
)

// getLogLevel reads ARGON_LOG_LEVEL, falling back to LOG_LEVEL.
// Defaults to info if neither is set or if the value is invalid.
func getLogLevel() (zapcore.Level, string) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		return zapcore.InfoLevel, ""
	}

	level, err := zapcore.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return zapcore.InfoLevel, levelStr
	}
	return level, ""
}

// newLogger logs to stderr, human readable on a terminal and JSON otherwise.
// stdout stays clean for command output.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	var cfg zap.Config
	if term.IsTerminal(int(os.Stderr.Fd())) {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func main() {
	level, invalid := getLogLevel()
	zapLogger, err := newLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()

	logger := zapr.NewLogger(zapLogger)
	if invalid != "" {
		logger.Info("Invalid LOG_LEVEL, using INFO", "value", invalid)
	}

	ctx := logr.NewContext(context.Background(), logger)
	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		_ = zapLogger.Sync()
		os.Exit(1)
	}
}
