// Package memory is a map-backed datasource for tests and dev mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// Compile-time check that Datasource implements types.Datasource.
var _ types.Datasource = (*Datasource)(nil)

// Datasource keeps clones of records keyed by media id.
type Datasource struct {
	mu        sync.RWMutex
	downloads map[string]*media.Download
}

// New creates an empty datasource.
func New() *Datasource {
	return &Datasource{downloads: make(map[string]*media.Download)}
}

// Type returns the datasource type.
func (ds *Datasource) Type() types.DatasourceType {
	return types.DatasourceTypeMemory
}

// Put stores a copy of d.
func (ds *Datasource) Put(_ context.Context, d *media.Download) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.downloads[d.MediaID] = d.Clone()
	return nil
}

// Get returns a copy of the stored record.
func (ds *Datasource) Get(_ context.Context, clientID, mediaID string) (*media.Download, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	d, ok := ds.downloads[mediaID]
	if !ok || d.ClientID != clientID || d.Status == media.StatusDeleted {
		return nil, types.ErrNotFound
	}
	return d.Clone(), nil
}

// ListActive returns the client's non-deleted downloads, newest first.
func (ds *Datasource) ListActive(_ context.Context, clientID string) ([]*media.Download, error) {
	return ds.filter(func(d *media.Download) bool {
		return d.ClientID == clientID && d.Status != media.StatusDeleted
	}), nil
}

// ListSubmittedBefore returns expirable downloads submitted at or before cutoff.
func (ds *Datasource) ListSubmittedBefore(_ context.Context, cutoff time.Time) ([]*media.Download, error) {
	return ds.filter(func(d *media.Download) bool {
		return !d.WhenSubmitted.After(cutoff) && d.Status.IsExpirable()
	}), nil
}

// Update replaces the stored record while its status is from.
func (ds *Datasource) Update(_ context.Context, d *media.Download, from media.Status) error {
	return ds.mutate(d.MediaID, from, func(stored *media.Download) {
		*stored = *d.Clone()
	})
}

// UpdateProgress writes status and progress only.
func (ds *Datasource) UpdateProgress(_ context.Context, info media.StatusInfo, from media.Status) error {
	return ds.mutate(info.MediaID, from, func(stored *media.Download) {
		stored.Status = info.Status
		if info.Progress != nil {
			stored.Progress = *info.Progress
		}
	})
}

// MarkDeleted soft deletes d.
func (ds *Datasource) MarkDeleted(_ context.Context, d *media.Download, when time.Time) error {
	return ds.mark(d, when, types.ApplyDeleted, func(stored, next *media.Download) {
		stored.WhenDeleted = next.WhenDeleted
	})
}

// MarkDownloaded records client retrieval of d.
func (ds *Datasource) MarkDownloaded(_ context.Context, d *media.Download, when time.Time) error {
	return ds.mark(d, when, types.ApplyDownloaded, func(stored, next *media.Download) {
		stored.WhenFileDownloaded = next.WhenFileDownloaded
	})
}

// MarkFailed records the failure of d.
func (ds *Datasource) MarkFailed(_ context.Context, d *media.Download, when time.Time) error {
	return ds.mark(d, when, types.ApplyFailed, func(stored, next *media.Download) {
		stored.WhenFailed = next.WhenFailed
	})
}

// DeleteBatch soft deletes the records in downloads that are still expirable.
func (ds *Datasource) DeleteBatch(_ context.Context, downloads []*media.Download, when time.Time) (int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	deleted := 0
	for _, d := range downloads {
		stored, ok := ds.downloads[d.MediaID]
		if !ok || !stored.Status.IsExpirable() {
			continue
		}
		types.ApplyDeleted(stored, when)
		types.ApplyDeleted(d, when)
		deleted++
	}
	return deleted, nil
}

// Clear removes every record.
func (ds *Datasource) Clear(_ context.Context) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.downloads = make(map[string]*media.Download)
	return nil
}

// Close is a no-op.
func (ds *Datasource) Close() error {
	return nil
}

func (ds *Datasource) mutate(mediaID string, from media.Status, fn func(*media.Download)) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	stored, ok := ds.downloads[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, mediaID)
	}
	if stored.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", types.ErrConflict, mediaID, stored.Status, from)
	}
	fn(stored)
	return nil
}

// mark applies the transition to a copy first so d is left alone on conflict.
func (ds *Datasource) mark(d *media.Download, when time.Time, apply func(*media.Download, time.Time), stamp func(stored, next *media.Download)) error {
	next := d.Clone()
	apply(next, when)
	err := ds.mutate(d.MediaID, d.Status, func(stored *media.Download) {
		stored.Status = next.Status
		stamp(stored, next)
	})
	if err != nil {
		return err
	}
	apply(d, when)
	return nil
}

func (ds *Datasource) filter(keep func(*media.Download) bool) []*media.Download {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	result := make([]*media.Download, 0)
	for _, d := range ds.downloads {
		if keep(d) {
			result = append(result, d.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].WhenSubmitted.After(result[j].WhenSubmitted)
	})
	return result
}
