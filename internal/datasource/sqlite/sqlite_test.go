package sqlite

import (
	"context"
	"testing"

	"github.com/ytdl/ytdl-api/internal/datasource/datasourcetest"
	"github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/testutil"
)

func TestDatasource(t *testing.T) {
	datasourcetest.Run(t, func(t *testing.T) types.Datasource {
		tdb := testutil.NewTestDB(t)
		return New(tdb.Conn, nil)
	})
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	tdb := testutil.NewTestDB(t)
	ds := New(tdb.Conn, nil)

	for _, s := range []media.Status{media.StatusStarted, media.StatusStarted, media.StatusFailed} {
		if err := ds.Put(ctx, testutil.NewDownload("c", testutil.WithStatus(s))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	counts, err := ds.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[media.StatusStarted] != 2 || counts[media.StatusFailed] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}
}

func TestDatasource_CloseRunsCloser(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	closed := false
	ds := New(tdb.Conn, func() error {
		closed = true
		return nil
	})

	if err := ds.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !closed {
		t.Error("expected closer to run")
	}
}
