package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileKV stores each key as a JSON file inside a directory.
type FileKV struct {
	dir string
}

// NewFileKV creates a FileKV rooted at dir, creating the directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

// Path returns the file backing key.
func (f *FileKV) Path(key string) string {
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(f.dir, name+".json")
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if os.IsNotExist(err) {
		return nil, ErrNoValue
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put writes through a temp file and rename so readers never see a partial write.
func (f *FileKV) Put(ctx context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) Close() error {
	return nil
}
