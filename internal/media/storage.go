package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Storage stores uploaded objects by key.
type Storage interface {
	// Write stores content from the reader with the given key.
	Write(ctx context.Context, key string, r io.Reader, contentType string) error

	// Read retrieves content for the given key. The caller closes the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content with the given key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath when needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("absolute base path: %w", err)
	}
	return &LocalStorage{basePath: absPath}, nil
}

// BasePath is the directory served under the media URL prefix.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// fullPath rejects keys that would escape basePath.
func (s *LocalStorage) fullPath(key string) (string, error) {
	cleanKey := filepath.Clean("/" + key)
	cleanKey = strings.TrimPrefix(cleanKey, "/")
	if cleanKey == "" || cleanKey == "." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.basePath, cleanKey), nil
}

// Write stores content atomically through a temp file and rename.
func (s *LocalStorage) Write(_ context.Context, key string, r io.Reader, _ string) error {
	path, err := s.fullPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// Read opens the object for key.
func (s *LocalStorage) Read(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes the object for key.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	path, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
