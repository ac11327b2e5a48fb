package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ytdl/ytdl-api/internal/downloader/mock"
	dltypes "github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/testutil"
)

// blockingDownloader records the order downloads start and holds each one
// until told to finish.
type blockingDownloader struct {
	*mock.Client
	mu      sync.Mutex
	started []string
	release chan struct{}
}

func newBlockingDownloader() *blockingDownloader {
	return &blockingDownloader{
		Client:  mock.New(mock.Options{}),
		release: make(chan struct{}),
	}
}

func (b *blockingDownloader) Download(ctx context.Context, d *media.Download, _ dltypes.EventHandler) bool {
	b.mu.Lock()
	b.started = append(b.started, d.MediaID)
	b.mu.Unlock()

	select {
	case <-b.release:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *blockingDownloader) Started() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.started...)
}

func noopHandler(context.Context, *media.Download, dltypes.Event) error { return nil }

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func schedule(t *testing.T, r *Runner, d *media.Download) {
	t.Helper()
	if !r.Schedule(d) {
		t.Fatalf("Schedule(%s) rejected", d.MediaID)
	}
}

func shutdown(t *testing.T, r *Runner) {
	t.Helper()
	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestRunner_DedupAndFIFO(t *testing.T) {
	dl := newBlockingDownloader()
	r := NewRunner(1, dl, noopHandler, testutil.NopLogger())

	a := testutil.NewDownload("c1")
	b := testutil.NewDownload("c1")
	c := testutil.NewDownload("c1")

	schedule(t, r, a)
	waitUntil(t, "first download", func() bool { return len(dl.Started()) == 1 })

	schedule(t, r, b)
	schedule(t, r, c)
	if r.Schedule(b.Clone()) {
		t.Error("Schedule() accepted a download that is already queued")
	}

	if queued, running := r.Stats(); queued != 2 || running != 1 {
		t.Errorf("Stats() = %d queued, %d running; want 2, 1", queued, running)
	}

	close(dl.release)
	waitUntil(t, "all downloads", func() bool { return len(dl.Started()) == 3 })
	if got, want := dl.Started(), []string{a.MediaID, b.MediaID, c.MediaID}; !slices.Equal(got, want) {
		t.Errorf("start order = %v, want %v", got, want)
	}

	shutdown(t, r)
}

func TestRunner_RescheduleWhileRunning(t *testing.T) {
	dl := newBlockingDownloader()
	r := NewRunner(2, dl, noopHandler, testutil.NopLogger())

	d := testutil.NewDownload("c1")
	schedule(t, r, d)
	waitUntil(t, "first run", func() bool { return len(dl.Started()) == 1 })

	// a second run waits for the first instead of running alongside it
	schedule(t, r, d.Clone())
	time.Sleep(50 * time.Millisecond)
	if n := len(dl.Started()); n != 1 {
		t.Errorf("%d runs started, want 1 while the first is running", n)
	}

	close(dl.release)
	waitUntil(t, "second run", func() bool { return len(dl.Started()) == 2 })
	waitUntil(t, "runner to forget the download", func() bool { return !r.IsScheduled(d.MediaID) })

	shutdown(t, r)
}

func TestRunner_ShutdownCancelsAndDrops(t *testing.T) {
	dl := newBlockingDownloader()
	r := NewRunner(1, dl, noopHandler, testutil.NopLogger())

	running := testutil.NewDownload("c1")
	queued := testutil.NewDownload("c1")
	schedule(t, r, running)
	waitUntil(t, "first download", func() bool { return len(dl.Started()) == 1 })
	schedule(t, r, queued)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want DeadlineExceeded", err)
	}

	if got := dl.Started(); !slices.Equal(got, []string{running.MediaID}) {
		t.Errorf("started = %v, queued download should be dropped", got)
	}
	if r.Schedule(testutil.NewDownload("c1")) {
		t.Error("closed runner accepted a job")
	}
	shutdown(t, r)
}

func TestKeyLock(t *testing.T) {
	k := newKeyLock()

	unlock := k.Lock("a")
	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while held")
	case <-time.After(30 * time.Millisecond):
	}

	// other keys are independent
	k.Lock("b")()

	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired")
	}

	waitUntil(t, "lock table to empty", func() bool { return k.size() == 0 })
}
