// Package logging builds the zap logger shared by every patternvec component.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // path or stderr/stdout; default stderr
}

// New builds a logger. Output defaults to stderr because stdout carries the
// MCP protocol when serving.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(defaultString(cfg.Level, "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var logConf zap.Config
	switch strings.ToLower(defaultString(cfg.Format, "console")) {
	case "json":
		logConf = zap.NewProductionConfig()
		logConf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		logConf = zap.NewDevelopmentConfig()
		logConf.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logConf.Level = zap.NewAtomicLevelAt(level)
	out := defaultString(cfg.Output, "stderr")
	logConf.OutputPaths = []string{out}
	logConf.ErrorOutputPaths = []string{"stderr"}

	return logConf.Build()
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
