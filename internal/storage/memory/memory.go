// Package memory keeps artifacts in process memory. Used in tests and dev mode.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/storage/types"
)

// Compile-time check that Storage implements types.Storage.
var _ types.Storage = (*Storage)(nil)

// Storage is a map of key to bytes.
type Storage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty in-memory store.
func New() *Storage {
	return &Storage{blobs: make(map[string][]byte)}
}

// Type returns the storage type.
func (s *Storage) Type() types.StorageType {
	return types.StorageTypeMemory
}

// Save reads the artifact fully into memory.
func (s *Storage) Save(_ context.Context, d *media.Download, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	key := d.StorageFilename()
	s.Put(key, data)
	return key, nil
}

// Put stores data under key directly.
func (s *Storage) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
}

// Open returns a reader over a copy of the stored bytes.
func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes key.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, key)
	}
	delete(s.blobs, key)
	return nil
}

// DeleteBatch removes every key.
func (s *Storage) DeleteBatch(ctx context.Context, keys []string, tolerateMissing bool) error {
	return types.DeleteEach(ctx, keys, tolerateMissing, s.Delete)
}

// Has reports whether key is stored.
func (s *Storage) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
