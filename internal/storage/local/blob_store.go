package local

import (
	"context"
	"fmt"
	"io"
)

// Config captures the parameters for the local export target.
type Config struct {
	// BaseDir is the root directory where exported artifacts are written.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes finished artifacts to a local directory. It is the export
// target when no bucket is configured.
type BlobStore struct {
	baseDir string
}

// New creates the export directory if needed and checks it is writable.
func New(cfg Config) (*BlobStore, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := ensureDir(cfg.BaseDir); err != nil {
		return nil, err
	}
	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// PutObject atomically writes data below the base directory and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	fullPath, err := within(s.baseDir, path)
	if err != nil {
		return "", err
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	if err := writeAtomic(fullPath, byteData); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return "file://" + fullPath, nil
}
