package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoValue is returned by KV.Get when nothing is stored under the key.
var ErrNoValue = errors.New("no value stored")

// KV is a durable key-value slot the session collection is persisted into.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names accepted by OpenKV.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string // file, sqlite, redis or memory
	Path     string // directory for file, database path for sqlite
	RedisURL string
}

// OpenKV opens the backend described by cfg.
func OpenKV(cfg StoreConfig) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		dir := cfg.Path
		if dir == "" {
			d, err := DataDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return NewFileKV(dir)
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			d, err := DataDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(d, "sessions.db")
		}
		return NewSQLiteKV(path)
	case BackendRedis:
		return NewRedisKV(cfg.RedisURL)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// DataDir returns the XDG data directory for term-chat, creating it if needed.
func DataDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise ~/.local/share
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	dir := filepath.Join(dataHome, "term-chat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// MemoryKV keeps values in process memory. Used for ephemeral runs and tests.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNoValue
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
