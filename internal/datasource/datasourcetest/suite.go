// Package datasourcetest holds behavior tests every datasource must pass.
package datasourcetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/testutil"
)

// Factory returns a fresh, empty datasource.
type Factory func(t *testing.T) types.Datasource

// Run exercises the datasource contract against stores built by newDS.
func Run(t *testing.T, newDS Factory) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) { testPutGet(t, newDS(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newDS(t)) })
	t.Run("GetOtherClient", func(t *testing.T) { testGetOtherClient(t, newDS(t)) })
	t.Run("ListActive", func(t *testing.T) { testListActive(t, newDS(t)) })
	t.Run("ListSubmittedBefore", func(t *testing.T) { testListSubmittedBefore(t, newDS(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newDS(t)) })
	t.Run("UpdateProgress", func(t *testing.T) { testUpdateProgress(t, newDS(t)) })
	t.Run("MarkHelpers", func(t *testing.T) { testMarkHelpers(t, newDS(t)) })
	t.Run("MarkUnknown", func(t *testing.T) { testMarkUnknown(t, newDS(t)) })
	t.Run("WritesRejectChangedStatus", func(t *testing.T) { testWritesRejectChangedStatus(t, newDS(t)) })
	t.Run("DeleteBatch", func(t *testing.T) { testDeleteBatch(t, newDS(t)) })
	t.Run("DeleteBatchSkipsInFlight", func(t *testing.T) { testDeleteBatchSkipsInFlight(t, newDS(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, newDS(t)) })
}

func testPutGet(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	d := testutil.NewDownload("client-1")
	d.Progress = media.Indeterminate()
	d.FilePath = testutil.StringPtr(d.StorageFilename())
	d.AudioStreamID = nil

	require.NoError(t, ds.Put(ctx, d))

	got, err := ds.Get(ctx, d.ClientID, d.MediaID)
	require.NoError(t, err)
	assertSameDownload(t, d, got)
}

func testGetUnknown(t *testing.T, ds types.Datasource) {
	_, err := ds.Get(context.Background(), "client-1", "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testGetOtherClient(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	d := testutil.NewDownload("client-1")
	require.NoError(t, ds.Put(ctx, d))

	_, err := ds.Get(ctx, "client-2", d.MediaID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testListActive(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	older := testutil.NewDownload("client-1", testutil.WithSubmitted(now.Add(-time.Hour)))
	newer := testutil.NewDownload("client-1", testutil.WithSubmitted(now))
	deleted := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusDeleted))
	other := testutil.NewDownload("client-2")

	for _, d := range []*media.Download{older, newer, deleted, other} {
		require.NoError(t, ds.Put(ctx, d))
	}

	got, err := ds.ListActive(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.MediaID, got[0].MediaID)
	assert.Equal(t, older.MediaID, got[1].MediaID)

	empty, err := ds.ListActive(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListSubmittedBefore(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	cutoff := time.Now().UTC().Truncate(time.Second).Add(-24 * time.Hour)

	atCutoff := testutil.NewDownload("c", testutil.WithSubmitted(cutoff), testutil.WithStatus(media.StatusFinished))
	before := testutil.NewDownload("c", testutil.WithSubmitted(cutoff.Add(-time.Hour)), testutil.WithStatus(media.StatusFailed))
	after := testutil.NewDownload("c", testutil.WithSubmitted(cutoff.Add(time.Hour)), testutil.WithStatus(media.StatusFinished))
	inFlight := testutil.NewDownload("c", testutil.WithSubmitted(cutoff.Add(-time.Hour)), testutil.WithStatus(media.StatusDownloading))
	converting := testutil.NewDownload("c", testutil.WithSubmitted(cutoff.Add(-time.Hour)), testutil.WithStatus(media.StatusConverting))
	deleted := testutil.NewDownload("c", testutil.WithSubmitted(cutoff.Add(-time.Hour)), testutil.WithStatus(media.StatusDeleted))

	for _, d := range []*media.Download{atCutoff, before, after, inFlight, converting, deleted} {
		require.NoError(t, ds.Put(ctx, d))
	}

	got, err := ds.ListSubmittedBefore(ctx, cutoff)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.MediaID)
	}
	assert.ElementsMatch(t, []string{atCutoff.MediaID, before.MediaID}, ids)
}

func testUpdate(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	d := testutil.NewDownload("client-1")
	require.NoError(t, ds.Put(ctx, d))

	finished := time.Now().UTC().Truncate(time.Millisecond)
	d.Status = media.StatusFinished
	d.Progress = media.Complete()
	d.Filesize = 2048
	d.FilesizeHR = "2.0 kB"
	d.FilePath = testutil.StringPtr(d.StorageFilename())
	d.WhenDownloadFinished = &finished
	require.NoError(t, ds.Update(ctx, d, media.StatusStarted))

	got, err := ds.Get(ctx, d.ClientID, d.MediaID)
	require.NoError(t, err)
	assertSameDownload(t, d, got)

	unknown := testutil.NewDownload("client-1")
	assert.ErrorIs(t, ds.Update(ctx, unknown, media.StatusStarted), types.ErrNotFound)
}

func testUpdateProgress(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	d := testutil.NewDownload("client-1")
	require.NoError(t, ds.Put(ctx, d))

	d.Status = media.StatusDownloading
	d.Progress = media.Percent(37)
	require.NoError(t, ds.UpdateProgress(ctx, media.NewStatusInfo(d), media.StatusStarted))

	got, err := ds.Get(ctx, d.ClientID, d.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusDownloading, got.Status)
	assert.Equal(t, 37, got.Progress.Value())
	assert.Equal(t, d.Title, got.Title)

	d.Progress = media.Percent(50)
	err = ds.UpdateProgress(ctx, media.NewStatusInfo(d), media.StatusStarted)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func testMarkHelpers(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	when := time.Now().UTC().Truncate(time.Millisecond)

	d := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFinished))
	require.NoError(t, ds.Put(ctx, d))

	require.NoError(t, ds.MarkDownloaded(ctx, d, when))
	assert.Equal(t, media.StatusDownloaded, d.Status)
	got, err := ds.Get(ctx, d.ClientID, d.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusDownloaded, got.Status)
	require.NotNil(t, got.WhenFileDownloaded)
	assert.True(t, when.Equal(*got.WhenFileDownloaded))

	failed := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusDownloading))
	require.NoError(t, ds.Put(ctx, failed))
	require.NoError(t, ds.MarkFailed(ctx, failed, when))
	got, err = ds.Get(ctx, failed.ClientID, failed.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusFailed, got.Status)
	require.NotNil(t, got.WhenFailed)

	require.NoError(t, ds.MarkDeleted(ctx, d, when))
	assert.Equal(t, media.StatusDeleted, d.Status)
	require.NotNil(t, d.WhenDeleted)
	_, err = ds.Get(ctx, d.ClientID, d.MediaID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testMarkUnknown(t *testing.T, ds types.Datasource) {
	d := testutil.NewDownload("client-1")
	assert.ErrorIs(t, ds.MarkFailed(context.Background(), d, time.Now()), types.ErrNotFound)
}

// A record soft deleted behind a writer's back must stay deleted.
func testWritesRejectChangedStatus(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	d := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusStarted))
	require.NoError(t, ds.Put(ctx, d))

	stale := d.Clone()
	require.NoError(t, ds.MarkDeleted(ctx, d, time.Now()))

	started := time.Now().UTC()
	stale.Status = media.StatusDownloading
	stale.Progress = media.NotStarted()
	stale.WhenStartedDownload = &started
	assert.ErrorIs(t, ds.Update(ctx, stale, media.StatusStarted), types.ErrConflict)

	stale.Status = media.StatusStarted
	stale.WhenStartedDownload = nil
	assert.ErrorIs(t, ds.MarkFailed(ctx, stale, time.Now()), types.ErrConflict)
	assert.Equal(t, media.StatusStarted, stale.Status, "rejected mark must leave the download alone")
	assert.Nil(t, stale.WhenFailed)

	_, err := ds.Get(ctx, d.ClientID, d.MediaID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	active, err := ds.ListActive(ctx, d.ClientID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func testDeleteBatch(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	a := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFinished))
	b := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFailed))
	keep := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFinished))
	for _, d := range []*media.Download{a, b, keep} {
		require.NoError(t, ds.Put(ctx, d))
	}

	n, err := ds.DeleteBatch(ctx, []*media.Download{a, b}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = ds.DeleteBatch(ctx, nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	active, err := ds.ListActive(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.MediaID, active[0].MediaID)
	assert.Equal(t, media.StatusDeleted, a.Status)
}

// A record listed as expirable that was retried into a download before the
// batch ran must not be deleted.
func testDeleteBatchSkipsInFlight(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	listed := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFailed))
	gone := testutil.NewDownload("client-1", testutil.WithStatus(media.StatusFinished))
	require.NoError(t, ds.Put(ctx, listed))
	require.NoError(t, ds.Put(ctx, gone))

	running := listed.Clone()
	running.Status = media.StatusDownloading
	running.Progress = media.Percent(10)
	require.NoError(t, ds.Put(ctx, running))
	require.NoError(t, ds.MarkDeleted(ctx, gone.Clone(), time.Now()))

	n, err := ds.DeleteBatch(ctx, []*media.Download{listed, gone}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, media.StatusFailed, listed.Status, "skipped download must stay untouched")
	assert.Nil(t, listed.WhenDeleted)

	got, err := ds.Get(ctx, listed.ClientID, listed.MediaID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusDownloading, got.Status)
	assert.Equal(t, 10, got.Progress.Value())
}

func testClear(t *testing.T, ds types.Datasource) {
	ctx := context.Background()
	require.NoError(t, ds.Put(ctx, testutil.NewDownload("client-1")))
	require.NoError(t, ds.Clear(ctx))

	active, err := ds.ListActive(ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func assertSameDownload(t *testing.T, want, got *media.Download) {
	t.Helper()

	assert.Equal(t, want.ClientID, got.ClientID)
	assert.Equal(t, want.MediaID, got.MediaID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.URL, got.URL)
	assert.Equal(t, want.Duration, got.Duration)
	assert.Equal(t, want.ThumbnailURL, got.ThumbnailURL)
	assert.Equal(t, want.VideoStreams, got.VideoStreams)
	assert.Equal(t, want.AudioStreams, got.AudioStreams)
	assert.Equal(t, want.VideoStreamID, got.VideoStreamID)
	assert.Equal(t, want.AudioStreamID, got.AudioStreamID)
	assert.Equal(t, want.MediaFormat, got.MediaFormat)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Progress.Wire(), got.Progress.Wire())
	assert.Equal(t, want.Progress.State(), got.Progress.State())
	assert.Equal(t, want.Filesize, got.Filesize)
	assert.Equal(t, want.FilesizeHR, got.FilesizeHR)
	assert.Equal(t, want.FilePath, got.FilePath)
	assert.True(t, want.WhenSubmitted.Equal(got.WhenSubmitted), "whenSubmitted %v != %v", want.WhenSubmitted, got.WhenSubmitted)
	assertSameTime(t, "whenStartedDownload", want.WhenStartedDownload, got.WhenStartedDownload)
	assertSameTime(t, "whenDownloadFinished", want.WhenDownloadFinished, got.WhenDownloadFinished)
	assertSameTime(t, "whenFileDownloaded", want.WhenFileDownloaded, got.WhenFileDownloaded)
	assertSameTime(t, "whenDeleted", want.WhenDeleted, got.WhenDeleted)
	assertSameTime(t, "whenFailed", want.WhenFailed, got.WhenFailed)
}

func assertSameTime(t *testing.T, name string, want, got *time.Time) {
	t.Helper()
	if want == nil || got == nil {
		assert.Equal(t, want == nil, got == nil, "%s presence", name)
		return
	}
	assert.True(t, want.Equal(*got), "%s %v != %v", name, *want, *got)
}
