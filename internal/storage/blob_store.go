package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore persists raw content addressed by a generated key and returns
// the handle recorded on the owning file record.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// DiskStore writes blobs as flat files under a base directory.
type DiskStore struct {
	basePath string
}

// NewDiskStore creates the base directory if missing.
func NewDiskStore(basePath string) (*DiskStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskStore{basePath: basePath}, nil
}

// Save writes the payload under the key and returns the absolute path.
func (s *DiskStore) Save(_ context.Context, key string, data []byte) (string, error) {
	target := filepath.Join(s.basePath, filepath.Base(key))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return target, nil
}
