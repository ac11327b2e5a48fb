// Package storage selects a blob store backend from configuration.
package storage

import (
	"errors"
	"fmt"

	"github.com/ytdl/ytdl-api/internal/storage/local"
	"github.com/ytdl/ytdl-api/internal/storage/memory"
	"github.com/ytdl/ytdl-api/internal/storage/types"
)

// Re-export so callers only import this package.
type (
	Storage     = types.Storage
	StorageType = types.StorageType
)

var (
	ErrNotFound = types.ErrNotFound

	ErrUnsupportedStorage = errors.New("unsupported storage type")
)

// Config selects and configures a backend.
type Config struct {
	Type string
	Path string
}

// New creates the configured storage backend.
func New(cfg Config) (Storage, error) {
	switch types.StorageType(cfg.Type) {
	case types.StorageTypeLocal, "":
		return local.New(cfg.Path)
	case types.StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStorage, cfg.Type)
	}
}
