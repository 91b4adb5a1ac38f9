// Package logging builds the zap loggers shared by the cockpit and the
// delivery service.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	name       string
	path       string
	level      string
	console    io.Writer
	maxSizeMB  int
	maxBackups int
}

// Option configures New.
type Option func(*options)

func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// Path sets the directory for the rotated JSON log file. Empty disables file output.
func Path(path string) Option {
	return func(o *options) { o.path = path }
}

func Level(level string) Option {
	return func(o *options) { o.level = level }
}

// Console redirects human-readable output; nil disables it.
func Console(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

func Rotation(maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// New returns a logger writing console lines and, when a path is set, a
// rotated JSON file named after the logger.
func New(opts ...Option) (*zap.Logger, error) {
	o := options{
		name:       "cockpit",
		level:      "info",
		console:    os.Stderr,
		maxSizeMB:  20,
		maxBackups: 5,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(o.level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
	}
	enabler := zap.NewAtomicLevelAt(level)

	var cores []zapcore.Core
	if o.console != nil {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(zapcore.AddSync(o.console)),
			enabler,
		))
	}
	if strings.TrimSpace(o.path) != "" {
		if err := os.MkdirAll(o.path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(o.path, o.name+".log"),
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			Compress:   true,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotator),
			enabler,
		))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named(o.name), nil
}
