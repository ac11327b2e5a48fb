// Package types defines the persistence contract for download records.
package types

import (
	"context"
	"errors"
	"time"

	"github.com/ytdl/ytdl-api/internal/media"
)

// Common errors for datasources.
var (
	ErrNotFound = errors.New("download not found")
	ErrConflict = errors.New("download status changed concurrently")
)

// DatasourceType identifies a datasource backend.
type DatasourceType string

const (
	DatasourceTypeSQLite   DatasourceType = "sqlite"
	DatasourceTypePostgres DatasourceType = "postgres"
	DatasourceTypeMemory   DatasourceType = "memory"
)

// Datasource stores download records. Implementations provide per-record
// atomicity for every mutation; nothing here spans records transactionally
// except DeleteBatch, which may be applied record by record.
//
// Status-changing writes are conditional: they apply only while the stored
// status still equals the expected one and fail with ErrConflict otherwise.
// A write against a record that does not exist fails with ErrNotFound.
type Datasource interface {
	Type() DatasourceType

	// Put inserts d, replacing any record with the same media id.
	Put(ctx context.Context, d *media.Download) error

	// Get returns the record for (clientID, mediaID). Soft-deleted records
	// are reported as ErrNotFound.
	Get(ctx context.Context, clientID, mediaID string) (*media.Download, error)

	// ListActive returns the client's non-deleted downloads, newest submission first.
	ListActive(ctx context.Context, clientID string) ([]*media.Download, error)

	// ListSubmittedBefore returns downloads submitted at or before cutoff that
	// are neither deleted nor in flight.
	ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*media.Download, error)

	// Update overwrites every mutable field of a record whose stored status is from.
	Update(ctx context.Context, d *media.Download, from media.Status) error

	// UpdateProgress writes only status and progress of a record whose
	// stored status is from.
	UpdateProgress(ctx context.Context, info media.StatusInfo, from media.Status) error

	// The Mark helpers move a record from d.Status to their target status and
	// set the matching timestamp. d is changed only when the write applies.
	MarkDeleted(ctx context.Context, d *media.Download, when time.Time) error
	MarkDownloaded(ctx context.Context, d *media.Download, when time.Time) error
	MarkFailed(ctx context.Context, d *media.Download, when time.Time) error

	// DeleteBatch soft deletes the downloads in ds that are still expirable
	// and returns how many it deleted. Records that became deleted or started
	// downloading since they were listed are skipped and left untouched.
	DeleteBatch(ctx context.Context, ds []*media.Download, when time.Time) (int, error)

	// Clear removes every record.
	Clear(ctx context.Context) error

	Close() error
}

// ApplyDeleted sets the soft delete fields on d.
func ApplyDeleted(d *media.Download, when time.Time) {
	when = when.UTC()
	d.Status = media.StatusDeleted
	d.WhenDeleted = &when
}

// ApplyDownloaded sets the client-retrieved fields on d.
func ApplyDownloaded(d *media.Download, when time.Time) {
	when = when.UTC()
	d.Status = media.StatusDownloaded
	d.WhenFileDownloaded = &when
}

// ApplyFailed sets the failure fields on d.
func ApplyFailed(d *media.Download, when time.Time) {
	when = when.UTC()
	d.Status = media.StatusFailed
	d.WhenFailed = &when
}
