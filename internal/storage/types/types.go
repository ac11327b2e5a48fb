// Package types defines the blob store contract shared by storage backends.
package types

import (
	"context"
	"errors"
	"io"

	"github.com/ytdl/ytdl-api/internal/media"
)

// Common errors for storage backends.
var (
	ErrNotFound   = errors.New("file not found in storage")
	ErrInvalidKey = errors.New("invalid storage key")
)

// StorageType identifies a storage backend.
type StorageType string

const (
	StorageTypeLocal  StorageType = "local"
	StorageTypeMemory StorageType = "memory"
)

// Storage persists finished artifacts.
type Storage interface {
	Type() StorageType

	// Save copies the local file at localPath into the store and returns its key.
	Save(ctx context.Context, d *media.Download, localPath string) (string, error)

	// Open returns a reader over the stored bytes. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a single blob. Missing blobs return ErrNotFound.
	Delete(ctx context.Context, key string) error

	// DeleteBatch removes every key. With tolerateMissing, ErrNotFound is ignored
	// per key. Other failures do not stop the batch; they are joined and returned.
	DeleteBatch(ctx context.Context, keys []string, tolerateMissing bool) error
}

// DeleteEach implements DeleteBatch on top of a single-key delete.
func DeleteEach(ctx context.Context, keys []string, tolerateMissing bool, del func(context.Context, string) error) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := del(ctx, key)
		if err == nil || (tolerateMissing && errors.Is(err, ErrNotFound)) {
			continue
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
