// Package downloader provides downloader abstractions and implementations.
package downloader

import (
	"github.com/ytdl/ytdl-api/internal/downloader/types"
)

// Re-export types for convenience.
// This allows external packages to use downloader.Downloader instead of types.Downloader.

type (
	Downloader      = types.Downloader
	DownloaderType  = types.DownloaderType
	VideoInfo       = types.VideoInfo
	Event           = types.Event
	EventHandler    = types.EventHandler
	StartedEvent    = types.StartedEvent
	ProgressEvent   = types.ProgressEvent
	ConvertingEvent = types.ConvertingEvent
	FinishedEvent   = types.FinishedEvent
	FailedEvent     = types.FailedEvent
)

// Re-export constants.
const (
	DownloaderTypeYTDLP = types.DownloaderTypeYTDLP
	DownloaderTypeMock  = types.DownloaderTypeMock
)

// Re-export errors.
var (
	ErrMalformedURL    = types.ErrMalformedURL
	ErrPrivateVideo    = types.ErrPrivateVideo
	ErrAgeRestricted   = types.ErrAgeRestricted
	ErrBotVerification = types.ErrBotVerification
	ErrUnavailable     = types.ErrUnavailable
	ErrUpstream        = types.ErrUpstream
	ErrNotInstalled    = types.ErrNotInstalled
)
