// Package media defines the download record and its lifecycle states.
package media

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a download.
type Status string

const (
	StatusStarted     Status = "started"
	StatusDownloading Status = "downloading"
	StatusConverting  Status = "converting"
	StatusFinished    Status = "finished"
	StatusDownloaded  Status = "downloaded" // retrieved by client
	StatusDeleted     Status = "deleted"
	StatusFailed      Status = "failed"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []Status{
	StatusStarted,
	StatusDownloading,
	StatusConverting,
	StatusFinished,
	StatusDownloaded,
	StatusDeleted,
	StatusFailed,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsActive reports whether a worker is currently producing the artifact.
func (s Status) IsActive() bool {
	return s == StatusDownloading || s == StatusConverting
}

// IsRetryable reports whether the download may be resubmitted.
// STARTED counts because it means accepted but not yet picked up.
func (s Status) IsRetryable() bool {
	return s == StatusFailed || s == StatusStarted
}

// IsDeletable reports whether the download may be soft deleted by the client.
func (s Status) IsDeletable() bool {
	return s == StatusFinished || s == StatusDownloaded || s == StatusFailed
}

// IsFileReady reports whether the artifact should exist in storage.
func (s Status) IsFileReady() bool {
	return s == StatusFinished || s == StatusDownloaded
}

// IsExpirable reports whether the sweeper may purge a download in this state.
func (s Status) IsExpirable() bool {
	return s != StatusDeleted && !s.IsActive()
}

var transitions = map[Status][]Status{
	StatusStarted:     {StatusDownloading, StatusFailed, StatusStarted},
	StatusDownloading: {StatusDownloading, StatusConverting, StatusFinished, StatusFailed},
	StatusConverting:  {StatusFinished, StatusFailed},
	StatusFinished:    {StatusDownloaded, StatusDeleted},
	StatusDownloaded:  {StatusDownloaded, StatusDeleted},
	StatusFailed:      {StatusStarted, StatusDeleted},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MediaFormat is the requested output container or codec.
type MediaFormat string

const (
	FormatMP4 MediaFormat = "mp4"
	FormatMP3 MediaFormat = "mp3"
	FormatWAV MediaFormat = "wav"
)

// AllFormats lists the supported output formats.
var AllFormats = []MediaFormat{FormatMP4, FormatMP3, FormatWAV}

// IsValid reports whether f is a supported format.
func (f MediaFormat) IsValid() bool {
	switch f {
	case FormatMP4, FormatMP3, FormatWAV:
		return true
	}
	return false
}

// IsAudio reports whether the format is audio only.
func (f MediaFormat) IsAudio() bool {
	return f == FormatMP3 || f == FormatWAV
}

// ContentType returns the MIME type served for the format.
func (f MediaFormat) ContentType() string {
	switch f {
	case FormatMP4:
		return "video/mp4"
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// AudioStream is a selectable source-side audio track.
type AudioStream struct {
	ID       string `json:"id"`
	Mimetype string `json:"mimetype"`
	Bitrate  string `json:"bitrate"`
}

// VideoStream is a selectable source-side video track.
type VideoStream struct {
	ID         string `json:"id"`
	Mimetype   string `json:"mimetype"`
	Resolution string `json:"resolution"`
}

// Download is the persisted record of one client's request for one media item.
type Download struct {
	ClientID     string        `json:"clientId"`
	MediaID      string        `json:"mediaId"`
	Title        string        `json:"title"`
	URL          string        `json:"url"`
	Duration     int           `json:"duration"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	VideoStreams []VideoStream `json:"videoStreams"`
	AudioStreams []AudioStream `json:"audioStreams"`

	VideoStreamID *string     `json:"videoStreamId"`
	AudioStreamID *string     `json:"audioStreamId"`
	MediaFormat   MediaFormat `json:"mediaFormat"`

	Status     Status   `json:"status"`
	Progress   Progress `json:"progress"`
	Filesize   int64    `json:"filesize"`
	FilesizeHR string   `json:"filesizeHr"`
	FilePath   *string  `json:"filePath"`

	WhenSubmitted        time.Time  `json:"whenSubmitted"`
	WhenStartedDownload  *time.Time `json:"whenStartedDownload"`
	WhenDownloadFinished *time.Time `json:"whenDownloadFinished"`
	WhenFileDownloaded   *time.Time `json:"whenFileDownloaded"`
	WhenDeleted          *time.Time `json:"whenDeleted"`
	WhenFailed           *time.Time `json:"whenFailed"`
}

// Key returns the unique key of the download.
func (d *Download) Key() string {
	return d.MediaID
}

// IsAudio reports whether the requested format is audio only.
func (d *Download) IsAudio() bool {
	return d.MediaFormat.IsAudio()
}

// StorageFilename is the name the artifact is stored under.
func (d *Download) StorageFilename() string {
	return fmt.Sprintf("%s.%s", d.MediaID, d.MediaFormat)
}

// Filename is the attachment name presented to the client.
func (d *Download) Filename() string {
	return fmt.Sprintf("%s.%s", d.Title, d.MediaFormat)
}

// Clone returns a deep copy of the download.
func (d *Download) Clone() *Download {
	c := *d
	c.VideoStreams = append([]VideoStream(nil), d.VideoStreams...)
	c.AudioStreams = append([]AudioStream(nil), d.AudioStreams...)
	c.VideoStreamID = cloneString(d.VideoStreamID)
	c.AudioStreamID = cloneString(d.AudioStreamID)
	c.FilePath = cloneString(d.FilePath)
	c.WhenStartedDownload = cloneTime(d.WhenStartedDownload)
	c.WhenDownloadFinished = cloneTime(d.WhenDownloadFinished)
	c.WhenFileDownloaded = cloneTime(d.WhenFileDownloaded)
	c.WhenDeleted = cloneTime(d.WhenDeleted)
	c.WhenFailed = cloneTime(d.WhenFailed)
	return &c
}

// ResetForRetry puts a failed or not-yet-started download back into STARTED.
func (d *Download) ResetForRetry() {
	d.Status = StatusStarted
	d.Progress = NotStarted()
	d.FilePath = nil
	d.Filesize = 0
	d.FilesizeHR = ""
	d.WhenStartedDownload = nil
	d.WhenDownloadFinished = nil
	d.WhenFailed = nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
