package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for media file storage operations
type Storage interface {
	// Save saves a file and returns its path relative to the store
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by its relative path
	Get(path string) ([]byte, error)

	// Delete removes a file
	Delete(path string) error

	// Path returns the absolute on-disk path for a stored file, for
	// handing to the extraction backend
	Path(path string) string
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: abs,
	}, nil
}

// Save saves a file to local storage. Subdirectories in the filename are
// created as needed, so date-partitioned names like 2024/03/15/x.jpg work.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating media directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(path))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(l.Path(path)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Path returns the absolute on-disk path for a stored file
func (l *LocalStorage) Path(path string) string {
	return filepath.Join(l.basePath, path)
}
