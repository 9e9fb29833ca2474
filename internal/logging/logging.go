// Package logging builds the process-wide structured logger, threaded
// explicitly through constructors the way the teacher threads *zap.Logger
// into agent.NewExecutor rather than reaching for a package-level global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger writing to stderr so stdout stays reserved for
// CSV output (spec.md §6: "Primary output on standard-out").
func New(verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = ""

	return cfg.Build()
}

// Level maps the script-visible log(level, ...) argument (spec.md §4.9)
// onto a zap level; unrecognized levels fall back to Info.
func Level(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Log writes a single already-concatenated message at the given level.
func Log(l *zap.Logger, level zapcore.Level, msg string) {
	if ce := l.Check(level, msg); ce != nil {
		ce.Write()
	}
}
