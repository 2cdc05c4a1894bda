package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore implements ObjectStore on a local directory
type FileSystemStore struct {
	rootDir string
}

// NewFileSystemStore creates the root directory if needed
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemStore{rootDir: rootDir}, nil
}

// Put writes content atomically via a temp file in the target directory
func (s *FileSystemStore) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

// Get opens a stored object
func (s *FileSystemStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ErrObjectNotFound
	}
	f, err := os.Open(filepath.Join(s.rootDir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}
