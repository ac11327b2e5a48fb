package api

import (
	"time"

	dltypes "github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// DownloadResponse is a download as shown to its owner. Storage details stay
// internal.
type DownloadResponse struct {
	ClientID      string              `json:"clientId"`
	MediaID       string              `json:"mediaId"`
	Title         string              `json:"title"`
	URL           string              `json:"url"`
	VideoStreams  []media.VideoStream `json:"videoStreams"`
	AudioStreams  []media.AudioStream `json:"audioStreams"`
	VideoStreamID *string             `json:"videoStreamId"`
	AudioStreamID *string             `json:"audioStreamId"`
	MediaFormat   media.MediaFormat   `json:"mediaFormat"`
	Duration      int                 `json:"duration"`
	FilesizeHR    *string             `json:"filesizeHr"`
	ThumbnailURL  string              `json:"thumbnailUrl"`
	Status        media.Status        `json:"status"`
	Progress      media.Progress      `json:"progress"`

	WhenSubmitted        time.Time  `json:"whenSubmitted"`
	WhenStartedDownload  *time.Time `json:"whenStartedDownload"`
	WhenDownloadFinished *time.Time `json:"whenDownloadFinished"`
	WhenFileDownloaded   *time.Time `json:"whenFileDownloaded"`
	WhenDeleted          *time.Time `json:"whenDeleted"`
}

// DownloadsResponse lists a client's downloads.
type DownloadsResponse struct {
	Downloads []DownloadResponse `json:"downloads"`
}

// RetryResponse acknowledges a rescheduled download.
type RetryResponse struct {
	MediaID string       `json:"mediaId"`
	Status  media.Status `json:"status"`
}

func newDownloadResponse(d *media.Download) DownloadResponse {
	r := DownloadResponse{
		ClientID:             d.ClientID,
		MediaID:              d.MediaID,
		Title:                d.Title,
		URL:                  d.URL,
		VideoStreams:         d.VideoStreams,
		AudioStreams:         d.AudioStreams,
		VideoStreamID:        d.VideoStreamID,
		AudioStreamID:        d.AudioStreamID,
		MediaFormat:          d.MediaFormat,
		Duration:             d.Duration,
		ThumbnailURL:         d.ThumbnailURL,
		Status:               d.Status,
		Progress:             d.Progress,
		WhenSubmitted:        d.WhenSubmitted,
		WhenStartedDownload:  d.WhenStartedDownload,
		WhenDownloadFinished: d.WhenDownloadFinished,
		WhenFileDownloaded:   d.WhenFileDownloaded,
		WhenDeleted:          d.WhenDeleted,
	}
	if d.FilesizeHR != "" {
		size := d.FilesizeHR
		r.FilesizeHR = &size
	}
	if r.VideoStreams == nil {
		r.VideoStreams = []media.VideoStream{}
	}
	if r.AudioStreams == nil {
		r.AudioStreams = []media.AudioStream{}
	}
	return r
}

func newDownloadsResponse(downloads []*media.Download) DownloadsResponse {
	resp := DownloadsResponse{Downloads: make([]DownloadResponse, 0, len(downloads))}
	for _, d := range downloads {
		resp.Downloads = append(resp.Downloads, newDownloadResponse(d))
	}
	return resp
}

// normalizeVideoInfo replaces nil lists so they encode as [].
func normalizeVideoInfo(info *dltypes.VideoInfo) *dltypes.VideoInfo {
	if info.AudioStreams == nil {
		info.AudioStreams = []media.AudioStream{}
	}
	if info.VideoStreams == nil {
		info.VideoStreams = []media.VideoStream{}
	}
	if info.MediaFormats == nil {
		info.MediaFormats = append([]media.MediaFormat(nil), media.AllFormats...)
	}
	return info
}
