package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// TERM_CHAT_STREAM_MODE for stream.mode.
const EnvPrefix = "TERM_CHAT"

type Config struct {
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Serve   ServeConfig   `mapstructure:"serve" yaml:"serve"`
}

type StreamConfig struct {
	Mode      string `mapstructure:"mode" yaml:"mode"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Token     string `mapstructure:"token" yaml:"token,omitempty"`
	MockReply string `mapstructure:"mock_reply" yaml:"mock_reply,omitempty"`
}

type StorageConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Path     string `mapstructure:"path" yaml:"path,omitempty"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url,omitempty"`
}

type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file,omitempty"`
	Level string `mapstructure:"level" yaml:"level"`
}

type ServeConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

var defaults = map[string]any{
	"stream.mode":       "mock",
	"stream.base_url":   "http://localhost:8787",
	"stream.token":      "",
	"stream.mock_reply": "",
	"storage.backend":   "file",
	"storage.path":      "",
	"storage.redis_url": "",
	"log.file":          "",
	"log.level":         "info",
	"serve.addr":        "127.0.0.1:8787",
	"serve.token":       "",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Stream:  StreamConfig{Mode: "mock", BaseURL: "http://localhost:8787"},
		Storage: StorageConfig{Backend: "file"},
		Log:     LogConfig{Level: "info"},
		Serve:   ServeConfig{Addr: "127.0.0.1:8787"},
	}
}

// Load reads the config file, applies TERM_CHAT_* environment overrides and
// resolves secret references. An empty path searches the user config dir
// and the working directory; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none
// are given) into the process environment. Existing variables win and
// missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) resolve() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"stream.base_url", &c.Stream.BaseURL},
		{"stream.token", &c.Stream.Token},
		{"storage.path", &c.Storage.Path},
		{"storage.redis_url", &c.Storage.RedisURL},
		{"log.file", &c.Log.File},
		{"serve.token", &c.Serve.Token},
	}
	for _, f := range fields {
		resolved, err := ResolveValue(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = resolved
	}
	return nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Stream.Mode {
	case "mock", "remote":
	default:
		errs = append(errs, fmt.Errorf("stream.mode: unknown mode %q (want mock or remote)", c.Stream.Mode))
	}
	switch c.Storage.Backend {
	case "file", "sqlite", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisURL == "" {
		errs = append(errs, errors.New("storage.redis_url: required for the redis backend"))
	}
	return errors.Join(errs...)
}

// Dir returns the directory holding config.yaml.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config dir: %w", err)
	}
	return filepath.Join(configDir, "term-chat"), nil
}

// GetConfigPath returns the path where the config file should be located.
func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Exists returns true if a config file exists at the default path.
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Init writes the default config to path unless a file already exists.
// It reports whether a file was written.
func Init(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := Save(Default(), path); err != nil {
		return false, err
	}
	return true, nil
}
