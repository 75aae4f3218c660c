package station

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Storage defines the interface for label file storage
type Storage interface {
	// Save writes a label and returns the name it was stored under
	Save(name string, data []byte) (string, error)

	// Get reads a stored label, returning ErrNotFound if it is missing
	Get(name string) ([]byte, error)

	// Delete removes a stored label
	Delete(name string) error
}

// LocalStorage keeps rendered labels in a directory on disk
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the label directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating label directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// path confines name to the label directory
func (l *LocalStorage) path(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}

// Save writes a label file
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if err := os.WriteFile(l.path(name), data, 0644); err != nil {
		return "", fmt.Errorf("writing label: %w", err)
	}
	return name, nil
}

// Get reads a label file
func (l *LocalStorage) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(l.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("label %w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading label: %w", err)
	}
	return data, nil
}

// Delete removes a label file
func (l *LocalStorage) Delete(name string) error {
	if err := os.Remove(l.path(name)); err != nil {
		return fmt.Errorf("deleting label: %w", err)
	}
	return nil
}
