package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend kinds accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// DefaultDir returns $XDG_CACHE_HOME/descramble, falling back to ~/.cache/descramble.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "descramble"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "descramble"), nil
}

// OpenBackend builds the backend named by kind rooted at dir. An empty dir
// uses DefaultDir. BackendNone returns a nil Backend.
func OpenBackend(kind, dir string) (Backend, error) {
	kind = strings.ToLower(kind)
	if kind == BackendNone {
		return nil, nil
	}
	if kind == BackendMemory {
		return NewMemoryStore(), nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	switch kind {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "cache.db"))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}
