// Package mock provides a simulated downloader for developer mode and tests.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

const (
	// DefaultSteps is how many progress ticks a mock download emits.
	DefaultSteps = 5
	// DefaultStepDelay is the pause between progress ticks.
	DefaultStepDelay = 200 * time.Millisecond
	// ArtifactSize is the size of the placeholder file a mock download writes.
	ArtifactSize = 4096
)

// Options tunes the simulation.
type Options struct {
	Steps     int
	StepDelay time.Duration
	// TempDir is where placeholder artifacts are written.
	TempDir string
	// Info overrides the canned video info returned for every URL.
	Info *types.VideoInfo
}

// Client implements a downloader that simulates progress without touching
// the network.
type Client struct {
	mu        sync.RWMutex
	steps     int
	stepDelay time.Duration
	tempDir   string
	info      *types.VideoInfo
	infoErr   map[string]error
	failures  map[string]error
	calls     []string
}

var _ types.Downloader = (*Client)(nil)

// New creates a mock downloader.
func New(opts Options) *Client {
	if opts.Steps <= 0 {
		opts.Steps = DefaultSteps
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	info := opts.Info
	if info == nil {
		info = DefaultVideoInfo()
	}
	return &Client{
		steps:     opts.Steps,
		stepDelay: opts.StepDelay,
		tempDir:   opts.TempDir,
		info:      info,
		infoErr:   make(map[string]error),
		failures:  make(map[string]error),
	}
}

// DefaultVideoInfo returns the canned listing served for every URL.
func DefaultVideoInfo() *types.VideoInfo {
	return &types.VideoInfo{
		URL:          "https://www.youtube.com/watch?v=NcBjx_eyvxc",
		Title:        "Madeira | Cinematic FPV",
		Duration:     224,
		ThumbnailURL: "https://i.ytimg.com/vi/NcBjx_eyvxc/maxresdefault.jpg",
		AudioStreams: []media.AudioStream{
			{ID: "139", Mimetype: "m4a", Bitrate: "49kbps"},
			{ID: "140", Mimetype: "m4a", Bitrate: "130kbps"},
			{ID: "251", Mimetype: "webm", Bitrate: "135kbps"},
		},
		VideoStreams: []media.VideoStream{
			{ID: "134", Mimetype: "mp4", Resolution: "360p"},
			{ID: "136", Mimetype: "mp4", Resolution: "720p"},
			{ID: "137", Mimetype: "mp4", Resolution: "1080p"},
		},
		MediaFormats: media.AllFormats,
	}
}

func (c *Client) Type() types.DownloaderType {
	return types.DownloaderTypeMock
}

func (c *Client) Version(_ context.Context) string {
	return "mock"
}

// FailURL makes GetVideoInfo return err for url.
func (c *Client) FailURL(url string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infoErr[url] = err
}

// FailMedia makes the next Download of mediaID fail with err.
func (c *Client) FailMedia(mediaID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[mediaID] = err
}

// Calls returns the media ids passed to Download, in order.
func (c *Client) Calls() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.calls...)
}

// GetVideoInfo returns the canned info with URL set to url.
func (c *Client) GetVideoInfo(ctx context.Context, url string) (*types.VideoInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err, ok := c.infoErr[url]; ok {
		return nil, err
	}

	info := *c.info
	info.URL = url
	info.AudioStreams = append([]media.AudioStream(nil), c.info.AudioStreams...)
	info.VideoStreams = append([]media.VideoStream(nil), c.info.VideoStreams...)
	info.MediaFormats = append([]media.MediaFormat(nil), c.info.MediaFormats...)
	return &info, nil
}

// Download walks d through the full event sequence, writing a placeholder
// artifact at the end.
func (c *Client) Download(ctx context.Context, d *media.Download, handle types.EventHandler) bool {
	c.mu.Lock()
	c.calls = append(c.calls, d.MediaID)
	failure, shouldFail := c.failures[d.MediaID]
	delete(c.failures, d.MediaID)
	c.mu.Unlock()

	if _, err := types.StreamSelector(d); err != nil {
		_ = handle(ctx, d, types.FailedEvent{Err: err})
		return false
	}

	_ = handle(ctx, d, types.StartedEvent{})

	for i := 1; i <= c.steps; i++ {
		if !c.sleep(ctx) {
			_ = handle(ctx, d, types.FailedEvent{Err: fmt.Errorf("%w: %v", types.ErrUpstream, ctx.Err())})
			return false
		}
		if shouldFail && i > c.steps/2 {
			_ = handle(ctx, d, types.FailedEvent{Err: failure})
			return false
		}
		_ = handle(ctx, d, types.ProgressEvent{Progress: media.Percent(i * 100 / c.steps)})
	}

	if !d.IsAudio() {
		_ = handle(ctx, d, types.ConvertingEvent{})
		c.sleep(ctx)
	}

	dir, err := os.MkdirTemp(c.tempDir, "ytdl-mock-")
	if err != nil {
		_ = handle(ctx, d, types.FailedEvent{Err: fmt.Errorf("%w: %v", types.ErrUpstream, err)})
		return false
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, d.StorageFilename())
	if err := os.WriteFile(path, placeholder(), 0o600); err != nil {
		_ = handle(ctx, d, types.FailedEvent{Err: fmt.Errorf("%w: %v", types.ErrUpstream, err)})
		return false
	}

	return handle(ctx, d, types.FinishedEvent{Path: path}) == nil
}

func (c *Client) sleep(ctx context.Context) bool {
	if c.stepDelay == 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// placeholder returns random bytes standing in for media content.
func placeholder() []byte {
	b := make([]byte, ArtifactSize/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return []byte(hex.EncodeToString(b))
}
