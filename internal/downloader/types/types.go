// Package types defines the contract between downloaders and the lifecycle
// orchestrator.
package types

import (
	"context"
	"errors"
	"fmt"

	"github.com/ytdl/ytdl-api/internal/media"
)

// Domain errors reported by downloaders.
var (
	ErrMalformedURL    = errors.New("malformed video url")
	ErrPrivateVideo    = errors.New("video is private")
	ErrAgeRestricted   = errors.New("content is age restricted")
	ErrBotVerification = errors.New("source requires bot verification")
	ErrUnavailable     = errors.New("video is unavailable")
	ErrUpstream        = errors.New("downloader failed")
	ErrNotInstalled    = errors.New("downloader binary not found")
)

// IsRestricted reports whether err means the source refused access to the content.
func IsRestricted(err error) bool {
	return errors.Is(err, ErrPrivateVideo) ||
		errors.Is(err, ErrAgeRestricted) ||
		errors.Is(err, ErrBotVerification)
}

// DownloaderType identifies a downloader implementation.
type DownloaderType string

const (
	DownloaderTypeYTDLP DownloaderType = "yt-dlp"
	DownloaderTypeMock  DownloaderType = "mock"
)

// VideoInfo is the metadata and stream listing of a remote video.
type VideoInfo struct {
	URL          string              `json:"url"`
	Title        string              `json:"title"`
	Duration     int                 `json:"duration"`
	ThumbnailURL string              `json:"thumbnailUrl"`
	AudioStreams []media.AudioStream `json:"audioStreams"`
	VideoStreams []media.VideoStream `json:"videoStreams"`
	MediaFormats []media.MediaFormat `json:"mediaFormats"`
}

// Event is one step a downloader reports while working on a download.
type Event interface {
	isEvent()
	Name() string
}

// StartedEvent is emitted once before any bytes are fetched.
type StartedEvent struct{}

// ProgressEvent carries a fetch progress tick.
type ProgressEvent struct {
	Progress media.Progress
}

// ConvertingEvent is emitted when stream merging begins. Video formats only.
type ConvertingEvent struct{}

// FinishedEvent carries the local path of the finished artifact. The file is
// only valid until the handler returns.
type FinishedEvent struct {
	Path string
}

// FailedEvent carries the error that stopped the download.
type FailedEvent struct {
	Err error
}

func (StartedEvent) isEvent()    {}
func (ProgressEvent) isEvent()   {}
func (ConvertingEvent) isEvent() {}
func (FinishedEvent) isEvent()   {}
func (FailedEvent) isEvent()     {}

func (StartedEvent) Name() string    { return "started" }
func (ProgressEvent) Name() string   { return "progress" }
func (ConvertingEvent) Name() string { return "converting" }
func (FinishedEvent) Name() string   { return "finished" }
func (FailedEvent) Name() string     { return "failed" }

// EventHandler receives every event for a download, in order, on the
// downloader's goroutine. A non-nil error from a FinishedEvent means the
// handler could not keep the artifact and has already recorded the failure;
// the downloader must not report a FailedEvent after it.
type EventHandler func(ctx context.Context, d *media.Download, e Event) error

// Downloader fetches remote media.
type Downloader interface {
	Type() DownloaderType

	// Version reports the underlying tool version, if known.
	Version(ctx context.Context) string

	// GetVideoInfo lists metadata and streams without downloading.
	GetVideoInfo(ctx context.Context, url string) (*VideoInfo, error)

	// Download fetches d and reports through handle: StartedEvent, zero or
	// more ProgressEvent, ConvertingEvent for video formats, then exactly one
	// FinishedEvent or FailedEvent. It reports whether the download succeeded.
	Download(ctx context.Context, d *media.Download, handle EventHandler) bool
}

// StreamSelector returns the format selector for d, e.g. "137+140".
func StreamSelector(d *media.Download) (string, error) {
	switch {
	case d.IsAudio():
		if d.AudioStreamID == nil {
			return "", fmt.Errorf("%w: audio format requires an audio stream", ErrUpstream)
		}
		return *d.AudioStreamID, nil
	case d.VideoStreamID != nil && d.AudioStreamID != nil:
		return *d.VideoStreamID + "+" + *d.AudioStreamID, nil
	case d.VideoStreamID != nil:
		return *d.VideoStreamID, nil
	default:
		return "", fmt.Errorf("%w: video format requires a video stream", ErrUpstream)
	}
}
