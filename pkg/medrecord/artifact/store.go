// Package artifact provides durable storage for rendered record
// artifacts. Files are laid out under date-partitioned directories
// (YYYY/MM/DD) so imports from different days never collide.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store is a filesystem implementation of the medrecord.ArtifactStore interface
type Store struct {
	baseDir string
}

// Config options for the filesystem artifact store
type Config struct {
	BaseDir string // Base directory for storing artifacts
}

// New creates a new filesystem artifact store
func New(config Config) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{baseDir: config.BaseDir}, nil
}

// Put stores data under a date-partitioned key derived from the record id
// and file name, returning the relative path and the lowercase hex sha256
// of the bytes written.
func (s *Store) Put(ctx context.Context, recordID uuid.UUID, fileName string, data []byte) (string, string, error) {
	now := time.Now().UTC()
	relPath := filepath.Join(
		now.Format("2006"), now.Format("01"), now.Format("02"),
		fmt.Sprintf("%s_%s", recordID, filepath.Base(fileName)),
	)
	fullPath := filepath.Join(s.baseDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write artifact: %w", err)
	}

	sum := sha256.Sum256(data)
	return relPath, hex.EncodeToString(sum[:]), nil
}

// Open returns the raw bytes previously stored at path.
func (s *Store) Open(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, path))
	if os.IsNotExist(err) {
		return nil, errors.New("artifact not found")
	} else if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}
