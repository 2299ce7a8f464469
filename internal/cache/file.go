package cache

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON file per entry under root/<namespace>/<key>.json.
// Writes go to a private temp file that is renamed into place, so concurrent
// writers never leave a torn file behind.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed store under root.
// The directory will be created if it does not exist.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("cache root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(namespace, key string) string {
	name := key
	if ValidateName(key) != nil {
		name = fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
	}
	return filepath.Join(s.root, namespace, name+".json")
}

// Get implements Backend.
func (s *FileStore) Get(namespace, key string) (Entry, bool, error) {
	if err := ValidateName(namespace); err != nil {
		return Entry{}, false, err
	}
	b, err := os.ReadFile(s.path(namespace, key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		// A file we cannot parse is as good as absent; the next Put replaces it.
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put implements Backend.
func (s *FileStore) Put(e Entry) error {
	if err := ValidateName(e.Namespace); err != nil {
		return err
	}
	dst := s.path(e.Namespace, e.Key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (s *FileStore) Delete(namespace, key string) error {
	if err := ValidateName(namespace); err != nil {
		return err
	}
	err := os.Remove(s.path(namespace, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear implements Backend.
func (s *FileStore) Clear(namespace string) error {
	if err := ValidateName(namespace); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, namespace))
}

// Close implements Backend.
func (s *FileStore) Close() error { return nil }
