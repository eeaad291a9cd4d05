// Package logging builds the zap loggers used across term-chat. The TUI owns
// the terminal, so records go to a rotating JSON file; commands that do not
// draw a UI may also tee to stderr.
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

// Options configures New.
type Options struct {
	// File is the log path. Empty uses DefaultFile.
	File string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Console, when set, receives a human readable copy of every record.
	Console io.Writer
}

// DefaultFile returns $XDG_STATE_HOME/term-chat/term-chat.log, falling back
// to ~/.local/state.
func DefaultFile() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "term-chat", "term-chat.log"), nil
}

// ParseLevel maps a level name onto a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	if strings.TrimSpace(name) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// New returns a logger writing JSON records to a size-rotated file. The
// returned logger should be synced before exit.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	path := opts.File
	if path == "" {
		if path, err = DefaultFile(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level)
	if opts.Console != nil {
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(opts.Console)),
			level,
		)
		core = zapcore.NewTee(core, consoleCore)
	}

	return zap.New(core, zap.AddCaller()).With(zap.Int("pid", os.Getpid())), nil
}
