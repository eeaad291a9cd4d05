package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/term-chat/internal/config"
	"github.com/samsaffron/term-chat/internal/controller"
	"github.com/samsaffron/term-chat/internal/logging"
	"github.com/samsaffron/term-chat/internal/session"
	"github.com/samsaffron/term-chat/internal/stream"
	"go.uber.org/zap"
)

// Overrides set by the chat/ask flags.
var (
	flagMock      bool
	flagRemote    string
	flagEphemeral bool
)

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if remote := strings.TrimSpace(flagRemote); remote != "" {
		cfg.Stream.Mode = stream.ModeRemote
		cfg.Stream.BaseURL = remote
	}
	if flagMock {
		cfg.Stream.Mode = stream.ModeMock
	}
	if flagEphemeral {
		cfg.Storage.Backend = session.BackendMemory
	}
}

// newLogger opens the rotating log file. console, when non-nil, also gets
// a readable copy of every record.
func newLogger(cfg *config.Config, console io.Writer) (*zap.Logger, error) {
	log, err := logging.New(logging.Options{
		File:    cfg.Log.File,
		Level:   cfg.Log.Level,
		Console: console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return log, nil
}

func newSource(cfg *config.Config, log *zap.Logger) (stream.Source, error) {
	return stream.New(stream.Config{
		Mode:      cfg.Stream.Mode,
		BaseURL:   cfg.Stream.BaseURL,
		Token:     cfg.Stream.Token,
		MockReply: cfg.Stream.MockReply,
		Logger:    log,
	})
}

// openController wires storage, the reply source and the controller from
// cfg. Callers must Close the controller.
func openController(ctx context.Context, cfg *config.Config, log *zap.Logger) (*controller.Controller, error) {
	kv, err := session.OpenKV(session.StoreConfig{
		Backend:  cfg.Storage.Backend,
		Path:     cfg.Storage.Path,
		RedisURL: cfg.Storage.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	src, err := newSource(cfg, log)
	if err != nil {
		kv.Close()
		return nil, err
	}

	ctrl, err := controller.New(ctx, controller.Options{
		Persister: session.NewPersister(kv, log),
		Source:    src,
		Logger:    log,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}
	log.Debug("controller ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("stream_mode", cfg.Stream.Mode))
	return ctrl, nil
}

// bootstrap loads config, logging and the controller in one go for
// commands that need all three.
func bootstrap(ctx context.Context) (*config.Config, *zap.Logger, *controller.Controller, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(cfg, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	ctrl, err := openController(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, ctrl, nil
}
