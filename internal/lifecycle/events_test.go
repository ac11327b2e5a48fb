package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dsmemory "github.com/ytdl/ytdl-api/internal/datasource/memory"
	dstypes "github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/downloader/mock"
	dltypes "github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/expiration"
	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/notification"
	stmemory "github.com/ytdl/ytdl-api/internal/storage/memory"
	"github.com/ytdl/ytdl-api/internal/testutil"
)

func writeArtifact(t *testing.T, d *media.Download) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), d.StorageFilename())
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o600))
	return path
}

func TestHandleEvent_Sequence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.put(t, testutil.NewDownload("client-1"))

	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.StartedEvent{}))
	stored, err := f.ds.Get(ctx, "client-1", d.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusDownloading, stored.Status)
	require.NotNil(t, stored.WhenStartedDownload)

	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.ProgressEvent{Progress: media.Percent(40)}))
	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.ProgressEvent{Progress: media.Indeterminate()}))
	stored, err = f.ds.Get(ctx, "client-1", d.MediaID)
	require.NoError(t, err)
	assert.True(t, stored.Progress.IsIndeterminate())

	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.ConvertingEvent{}))
	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.FinishedEvent{Path: writeArtifact(t, d)}))

	stored, err = f.ds.Get(ctx, "client-1", d.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusFinished, stored.Status)
	assert.Equal(t, int64(2048), stored.Filesize)
	assert.Equal(t, "2.0 kB", stored.FilesizeHR)
	assert.Equal(t, d.StorageFilename(), *stored.FilePath)

	var events []media.StatusInfo
	for {
		e, ok := f.queue.TryGet("client-1")
		if !ok {
			break
		}
		events = append(events, e)
	}
	require.Len(t, events, 5)
	assert.Equal(t, media.StatusDownloading, events[0].Status)
	assert.Equal(t, 0, events[0].Progress.Wire())
	assert.Equal(t, 40, events[1].Progress.Wire())
	assert.Equal(t, -1, events[2].Progress.Wire())
	assert.Equal(t, media.StatusConverting, events[3].Status)
	assert.True(t, events[3].Progress.IsIndeterminate())
	assert.Equal(t, media.StatusFinished, events[4].Status)
	assert.Equal(t, 100, events[4].Progress.Wire())
	assert.Equal(t, "2.0 kB", events[4].FilesizeHR)
}

func TestHandleEvent_ConvertingIgnoredForAudio(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.put(t, testutil.NewDownload("client-1", testutil.WithFormat(media.FormatWAV), testutil.WithStatus(media.StatusDownloading)))

	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.ConvertingEvent{}))
	assert.Equal(t, media.StatusDownloading, d.Status)
	assert.Equal(t, 0, f.queue.Len("client-1"))
}

func TestHandleEvent_Failed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.put(t, testutil.NewDownload("client-1", testutil.WithStatus(media.StatusConverting)))

	require.NoError(t, f.svc.HandleEvent(ctx, d, dltypes.FailedEvent{Err: dltypes.ErrUnavailable}))

	stored, err := f.ds.Get(ctx, "client-1", d.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusFailed, stored.Status)
	assert.NotNil(t, stored.WhenFailed)
	assert.Nil(t, stored.FilePath)

	e, ok := f.queue.TryGet("client-1")
	require.True(t, ok)
	assert.Equal(t, media.StatusFailed, e.Status)
	assert.Nil(t, e.Progress)
	assert.Equal(t, 0, f.queue.Len("client-1"))

	// a second failure report is rejected and publishes nothing
	err = f.svc.HandleEvent(ctx, d, dltypes.FailedEvent{Err: dltypes.ErrUpstream})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, f.queue.Len("client-1"))
}

func TestHandleEvent_StorageFailureRecordsFailed(t *testing.T) {
	ds := dsmemory.New()
	queue := notification.NewQueue(notification.Config{}, testutil.NopLogger())
	dl := mock.New(mock.Options{Steps: 1, TempDir: t.TempDir()})
	svc := NewService(Config{}, ds, failingStorage{stmemory.New()}, dl, queue, testutil.NewTestLogger(t))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	ctx := context.Background()
	d := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusConverting))
	require.NoError(t, ds.Put(ctx, d))

	err := svc.HandleEvent(ctx, d, dltypes.FinishedEvent{Path: writeArtifact(t, d)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")

	stored, gerr := ds.Get(ctx, "client-1", d.MediaID)
	require.NoError(t, gerr)
	assert.Equal(t, media.StatusFailed, stored.Status)
	assert.Nil(t, stored.FilePath)

	e, ok := queue.TryGet("client-1")
	require.True(t, ok)
	assert.Equal(t, media.StatusFailed, e.Status)
	assert.Equal(t, 0, queue.Len("client-1"))
}

func TestHandleEvent_StorageFailureThroughRunner(t *testing.T) {
	ds := dsmemory.New()
	queue := notification.NewQueue(notification.Config{}, testutil.NopLogger())
	dl := mock.New(mock.Options{Steps: 1, TempDir: t.TempDir()})
	svc := NewService(Config{}, ds, failingStorage{stmemory.New()}, dl, queue, testutil.NewTestLogger(t))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	downloads, err := svc.Submit(context.Background(), "client-1", validParams())
	require.NoError(t, err)
	mediaID := downloads[0].MediaID

	f := &fixture{svc: svc, ds: ds, queue: queue}
	f.waitStatus(t, "client-1", mediaID, media.StatusFailed)

	var failed int
	for _, s := range f.drain("client-1") {
		if s == media.StatusFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed, "exactly one FAILED event")
}

func TestHandleEvent_InvalidTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	finished := f.put(t, testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFinished)))
	assert.ErrorIs(t, f.svc.HandleEvent(ctx, finished, dltypes.StartedEvent{}), ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.HandleEvent(ctx, finished, dltypes.ProgressEvent{Progress: media.Percent(5)}), ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.HandleEvent(ctx, finished, dltypes.FailedEvent{Err: errors.New("late")}), ErrInvalidTransition)
	assert.Equal(t, media.StatusFinished, finished.Status)

	// finishing without having started still ends in FAILED
	started := f.put(t, testutil.NewDownload("client-1"))
	err := f.svc.HandleEvent(ctx, started, dltypes.FinishedEvent{Path: writeArtifact(t, started)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, media.StatusFailed, started.Status)
}

// panicDownloader blows up mid download.
type panicDownloader struct {
	*mock.Client
}

func (p panicDownloader) Download(ctx context.Context, d *media.Download, handle dltypes.EventHandler) bool {
	_ = handle(ctx, d, dltypes.StartedEvent{})
	panic("decoder exploded")
}

func TestRunner_RecoversPanic(t *testing.T) {
	f := newFixture(t, panicDownloader{mock.New(mock.Options{})})

	downloads, err := f.svc.Submit(context.Background(), "client-1", validParams())
	require.NoError(t, err)

	d := f.waitStatus(t, "client-1", downloads[0].MediaID, media.StatusFailed)
	assert.NotNil(t, d.WhenFailed)

	// the pool keeps serving after a panic
	_, err = f.svc.Submit(context.Background(), "client-1", validParams())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		list, err := f.svc.List(context.Background(), "client-1")
		if err != nil || len(list) != 2 {
			return false
		}
		for _, d := range list {
			if d.Status != media.StatusFailed {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHandleEvent_SweptDownloadStaysDeleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.put(t, testutil.NewDownload("client-1", testutil.WithSubmitted(time.Now().Add(-48*time.Hour))))

	// the runner still holds its STARTED copy when the sweeper deletes the record
	running := d.Clone()
	sweeper := expiration.NewService(f.ds, f.storage, 24*time.Hour, testutil.NopLogger())
	res, err := sweeper.Sweep(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, res.Deleted)

	err = f.svc.HandleEvent(ctx, running, dltypes.StartedEvent{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, dstypes.ErrConflict)
	assert.Equal(t, media.StatusDeleted, running.Status)

	// the rest of the run is rejected too
	assert.ErrorIs(t, f.svc.HandleEvent(ctx, running, dltypes.ProgressEvent{Progress: media.Percent(50)}), ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.HandleEvent(ctx, running, dltypes.FinishedEvent{Path: writeArtifact(t, running)}), ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.HandleEvent(ctx, running, dltypes.FailedEvent{Err: errors.New("late")}), ErrInvalidTransition)

	_, err = f.ds.Get(ctx, "client-1", d.MediaID)
	assert.ErrorIs(t, err, dstypes.ErrNotFound)
	active, err := f.svc.List(ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, f.storage.Keys())
	assert.Equal(t, 0, f.queue.Len("client-1"))
}

func TestHandleEvent_FailureAfterSweepPublishesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.put(t, testutil.NewDownload("client-1"))

	running := d.Clone()
	require.NoError(t, f.ds.MarkDeleted(ctx, d, time.Now()))

	err := f.svc.HandleEvent(ctx, running, dltypes.FailedEvent{Err: dltypes.ErrUpstream})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, media.StatusDeleted, running.Status)

	_, err = f.ds.Get(ctx, "client-1", d.MediaID)
	assert.ErrorIs(t, err, dstypes.ErrNotFound)
	assert.Equal(t, 0, f.queue.Len("client-1"))
}

func TestHandleEvent_FinishedAfterDeleteDropsArtifact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.put(t, testutil.NewDownload("client-1", testutil.WithStatus(media.StatusConverting)))

	running := d.Clone()
	stored := d.Clone()
	stored.Status = media.StatusFailed
	require.NoError(t, f.ds.Put(ctx, stored))

	err := f.svc.HandleEvent(ctx, running, dltypes.FinishedEvent{Path: writeArtifact(t, running)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, media.StatusFailed, running.Status)
	assert.Empty(t, f.storage.Keys(), "artifact saved for a superseded record must be removed")
	assert.Equal(t, 0, f.queue.Len("client-1"))
}
