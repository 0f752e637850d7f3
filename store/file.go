package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON blob per plugin id under a root directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record. Distinct ids map to distinct files, so concurrent
// operations on distinct ids are safe.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a store
// over it.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string { return s.root }

// Save implements Store.
func (s *FileStore) Save(id string, data []byte) (string, error) {
	path, err := s.path(id)
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("file store: write %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("file store: commit %s: %w", id, err)
	}
	return path, nil
}

// Load implements Store.
func (s *FileStore) Load(id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", id, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *FileStore) Delete(id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("file store: delete %s: %w", id, err)
	}
	return true, nil
}

// Exists implements Store.
func (s *FileStore) Exists(id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("file store: stat %s: %w", id, err)
	}
	return true, nil
}

// path rejects ids that would escape the root directory.
func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("file store: invalid plugin id %q", id)
	}
	return filepath.Join(s.root, id+".json"), nil
}
