package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	var console bytes.Buffer

	log, err := New(Options{File: path, Level: "debug", Console: &console})
	require.NoError(t, err)
	log.Debug("hello", zap.String("session_id", "abc"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "hello", record["message"])
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "abc", record["session_id"])
	assert.Contains(t, record, "timestamp")

	assert.Contains(t, console.String(), "hello")
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	log, err := New(Options{File: path, Level: "warn"})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel(" ERROR ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	path, err := DefaultFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "term-chat", "term-chat.log"), path)
}
