package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
stream:
  mode: remote
  base_url: http://chat.internal:9000
storage:
  backend: sqlite
  path: /tmp/chat.db
`)
	t.Setenv("TERM_CHAT_STORAGE_BACKEND", "memory")
	t.Setenv("CHAT_TOKEN", "s3cret")
	t.Setenv("TERM_CHAT_STREAM_TOKEN", "${CHAT_TOKEN}")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "remote", cfg.Stream.Mode)
	assert.Equal(t, "http://chat.internal:9000", cfg.Stream.BaseURL)
	assert.Equal(t, "s3cret", cfg.Stream.Token)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/chat.db", cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadSearchesUserConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	writeFile(t, filepath.Join(home, "term-chat", "config.yaml"), "serve:\n  addr: 0.0.0.0:9999\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Serve.Addr)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "stream: [unclosed\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to read config")
}

func TestSaveAndInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	written, err := Init(path)
	require.NoError(t, err)
	assert.True(t, written)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)

	cfg := Default()
	cfg.Stream.Mode = "remote"
	cfg.Serve.Token = "abc"
	require.NoError(t, Save(cfg, path))

	written, err = Init(path)
	require.NoError(t, err)
	assert.False(t, written)

	loaded, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Stream.Mode = "telepathy"
	cfg.Storage.Backend = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.mode")
	assert.Contains(t, err.Error(), "storage.redis_url")

	cfg = Default()
	cfg.Storage.Backend = "floppy"
	assert.ErrorContains(t, cfg.Validate(), "storage.backend")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "TERM_CHAT_TEST_FROM_DOTENV=yes\nTERM_CHAT_TEST_PRESET=fromfile\n")
	t.Setenv("TERM_CHAT_TEST_PRESET", "fromenv")
	t.Cleanup(func() { os.Unsetenv("TERM_CHAT_TEST_FROM_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "yes", os.Getenv("TERM_CHAT_TEST_FROM_DOTENV"))
	assert.Equal(t, "fromenv", os.Getenv("TERM_CHAT_TEST_PRESET"))
}

func TestResolveValue(t *testing.T) {
	t.Setenv("TERM_CHAT_RESOLVE", "value")

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  plain  ", "plain"},
		{"${TERM_CHAT_RESOLVE}", "value"},
		{"$TERM_CHAT_RESOLVE", "value"},
		{"$(echo from-command)", "from-command"},
		{"http://localhost:8787", "http://localhost:8787"},
	}
	for _, tt := range tests {
		got, err := ResolveValue(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ResolveValue("$(exit 3)")
	assert.ErrorContains(t, err, "command failed")

	_, err = ResolveValue("srv:///path")
	assert.ErrorContains(t, err, "missing host")
}
