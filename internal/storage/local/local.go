// Package local stores artifacts as files in a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/storage/types"
)

// Compile-time check that Storage implements types.Storage.
var _ types.Storage = (*Storage)(nil)

// Storage keeps each artifact under <root>/<mediaId>.<format>.
type Storage struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty storage path", types.ErrInvalidKey)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	return &Storage{root: abs}, nil
}

// Type returns the storage type.
func (s *Storage) Type() types.StorageType {
	return types.StorageTypeLocal
}

// Root returns the absolute storage directory.
func (s *Storage) Root() string {
	return s.root
}

// Save copies the artifact into the storage directory.
func (s *Storage) Save(_ context.Context, d *media.Download, localPath string) (string, error) {
	key := d.StorageFilename()
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return key, nil
}

// Open opens the stored file for reading.
func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the stored file.
func (s *Storage) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", types.ErrNotFound, key)
		}
		return err
	}
	return nil
}

// DeleteBatch removes every key.
func (s *Storage) DeleteBatch(ctx context.Context, keys []string, tolerateMissing bool) error {
	return types.DeleteEach(ctx, keys, tolerateMissing, s.Delete)
}

// resolve maps a key to a path inside root, rejecting anything that escapes it.
func (s *Storage) resolve(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key), nil
}
