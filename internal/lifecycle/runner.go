package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// DefaultMaxParallel is the worker count used when none is configured.
const DefaultMaxParallel = 2

// Runner executes downloads on a bounded pool of workers. Jobs start in the
// order they were scheduled. A media id is never queued or running twice.
type Runner struct {
	downloader types.Downloader
	handle     types.EventHandler
	logger     zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*media.Download
	queued  map[string]struct{}
	active  map[string]struct{}
	// rerun holds downloads scheduled again while their previous run was
	// still winding down. They are queued once that run returns.
	rerun  map[string]*media.Download
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner starts workers goroutines that run dl for every scheduled download,
// reporting events to handle.
func NewRunner(workers int, dl types.Downloader, handle types.EventHandler, logger zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultMaxParallel
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		downloader: dl,
		handle:     handle,
		logger:     logger.With().Str("component", "runner").Logger(),
		queued:     make(map[string]struct{}),
		active:     make(map[string]struct{}),
		rerun:      make(map[string]*media.Download),
		ctx:        ctx,
		cancel:     cancel,
	}
	r.cond = sync.NewCond(&r.mu)

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker(i)
	}

	r.logger.Info().Int("workers", workers).Msg("Download runner started")
	return r
}

// Schedule queues d for execution. It returns false when the media id is
// already queued or the runner is shut down. A media id that is running is
// queued again after the current run returns.
func (r *Runner) Schedule(d *media.Download) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, ok := r.queued[d.MediaID]; ok {
		r.logger.Debug().Str("mediaId", d.MediaID).Msg("Download already queued")
		return false
	}
	if _, ok := r.active[d.MediaID]; ok {
		r.rerun[d.MediaID] = d
		return true
	}

	r.enqueueLocked(d)
	return true
}

func (r *Runner) enqueueLocked(d *media.Download) {
	r.queued[d.MediaID] = struct{}{}
	r.pending = append(r.pending, d)
	r.cond.Signal()
}

// IsScheduled reports whether mediaID is queued or running.
func (r *Runner) IsScheduled(mediaID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, queued := r.queued[mediaID]
	_, active := r.active[mediaID]
	return queued || active
}

// Stats reports queued and running job counts.
func (r *Runner) Stats() (queued, running int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending), len(r.active)
}

// Shutdown stops accepting jobs, drops queued ones and waits for running
// jobs. When ctx ends first, running downloads are cancelled and Shutdown
// still waits for them to report.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	dropped := len(r.pending) + len(r.rerun)
	r.pending = nil
	r.queued = make(map[string]struct{})
	r.rerun = make(map[string]*media.Download)
	r.cond.Broadcast()
	r.mu.Unlock()

	if dropped > 0 {
		r.logger.Warn().Int("dropped", dropped).Msg("Dropped queued downloads on shutdown")
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) next() (*media.Download, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.pending) == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return nil, false
	}

	d := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	delete(r.queued, d.MediaID)
	r.active[d.MediaID] = struct{}{}
	return d, true
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		d, ok := r.next()
		if !ok {
			return
		}

		success := r.run(d)

		r.mu.Lock()
		delete(r.active, d.MediaID)
		if again, ok := r.rerun[d.MediaID]; ok {
			delete(r.rerun, d.MediaID)
			if !r.closed {
				r.enqueueLocked(again)
			}
		}
		r.mu.Unlock()

		r.logger.Debug().
			Int("worker", id).
			Str("mediaId", d.MediaID).
			Bool("success", success).
			Msg("Download job done")
	}
}

// run executes one download. A panicking downloader is reported as a failure.
func (r *Runner) run(d *media.Download) (success bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("mediaId", d.MediaID).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Downloader panicked")

			err := fmt.Errorf("%w: downloader panic: %v", types.ErrUpstream, rec)
			if herr := r.handle(context.WithoutCancel(r.ctx), d, types.FailedEvent{Err: err}); herr != nil {
				r.logger.Warn().Err(herr).Str("mediaId", d.MediaID).Msg("Failed to record panic")
			}
			success = false
		}
	}()

	return r.downloader.Download(r.ctx, d, r.handle)
}
