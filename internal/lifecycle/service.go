// Package lifecycle drives downloads from submission to their terminal state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	dstypes "github.com/ytdl/ytdl-api/internal/datasource/types"
	dltypes "github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
	sttypes "github.com/ytdl/ytdl-api/internal/storage/types"
)

// Publisher receives progress events for a client.
type Publisher interface {
	Put(clientID string, event media.StatusInfo)
}

// Config configures the service.
type Config struct {
	APIVersion  string
	MaxParallel int
}

// VersionInfo describes the running service.
type VersionInfo struct {
	APIVersion        string `json:"apiVersion"`
	Downloader        string `json:"downloader"`
	DownloaderVersion string `json:"downloaderVersion,omitempty"`
}

// DeleteResult is returned after a successful delete.
type DeleteResult struct {
	MediaID string       `json:"mediaId"`
	Status  media.Status `json:"status"`
	IsAudio bool         `json:"isAudio"`
	Title   string       `json:"title"`
}

// Service owns the download state machine. Request operations run on the
// caller's goroutine; downloads run on the Runner and report back through
// HandleEvent.
type Service struct {
	cfg        Config
	datasource dstypes.Datasource
	storage    sttypes.Storage
	downloader dltypes.Downloader
	publisher  Publisher
	runner     *Runner
	locks      *keyLock
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates the service and starts its download runner.
func NewService(
	cfg Config,
	ds dstypes.Datasource,
	st sttypes.Storage,
	dl dltypes.Downloader,
	pub Publisher,
	logger zerolog.Logger,
) *Service {
	s := &Service{
		cfg:        cfg,
		datasource: ds,
		storage:    st,
		downloader: dl,
		publisher:  pub,
		locks:      newKeyLock(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("component", "lifecycle").Logger(),
	}
	s.runner = NewRunner(cfg.MaxParallel, dl, s.HandleEvent, logger)
	return s
}

// Runner exposes the download pool.
func (s *Service) Runner() *Runner {
	return s.runner
}

// Shutdown stops the runner. See Runner.Shutdown.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}

// Version reports the API and downloader versions.
func (s *Service) Version(ctx context.Context) VersionInfo {
	return VersionInfo{
		APIVersion:        s.cfg.APIVersion,
		Downloader:        string(s.downloader.Type()),
		DownloaderVersion: s.downloader.Version(ctx),
	}
}

// newMediaID returns a random 32 character hex id.
func newMediaID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Submit validates params, records a STARTED download for the client and
// schedules it. It returns the client's active downloads.
func (s *Service) Submit(ctx context.Context, clientID string, params media.DownloadParams) ([]*media.Download, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	info, err := s.downloader.GetVideoInfo(ctx, params.URL)
	if err != nil {
		return nil, fmt.Errorf("get video info: %w", err)
	}

	d := &media.Download{
		ClientID:      clientID,
		MediaID:       newMediaID(),
		Title:         info.Title,
		URL:           params.URL,
		Duration:      info.Duration,
		ThumbnailURL:  info.ThumbnailURL,
		VideoStreams:  info.VideoStreams,
		AudioStreams:  info.AudioStreams,
		VideoStreamID: params.VideoStreamID,
		AudioStreamID: params.AudioStreamID,
		MediaFormat:   params.MediaFormat,
		Status:        media.StatusStarted,
		Progress:      media.NotStarted(),
		WhenSubmitted: s.now(),
	}

	if err := s.datasource.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("save download: %w", err)
	}

	s.logger.Info().
		Str("clientId", clientID).
		Str("mediaId", d.MediaID).
		Str("format", string(d.MediaFormat)).
		Str("title", d.Title).
		Msg("Download submitted")

	s.publisher.Put(clientID, media.NewStatusInfo(d))
	s.runner.Schedule(d.Clone())

	return s.List(ctx, clientID)
}

// List returns the client's non-deleted downloads, newest first.
func (s *Service) List(ctx context.Context, clientID string) ([]*media.Download, error) {
	downloads, err := s.datasource.ListActive(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return downloads, nil
}

// Preview looks up stream metadata for url without recording anything.
func (s *Service) Preview(ctx context.Context, url string) (*dltypes.VideoInfo, error) {
	normalized, err := media.NormalizeURL(url)
	if err != nil {
		return nil, err
	}
	info, err := s.downloader.GetVideoInfo(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("get video info: %w", err)
	}
	return info, nil
}

func (s *Service) get(ctx context.Context, clientID, mediaID string) (*media.Download, error) {
	d, err := s.datasource.Get(ctx, clientID, mediaID)
	if errors.Is(err, dstypes.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get download: %w", err)
	}
	return d, nil
}

// OpenFile returns the finished artifact for reading and marks the download
// as retrieved. The caller closes the reader.
func (s *Service) OpenFile(ctx context.Context, clientID, mediaID string) (*media.Download, io.ReadCloser, error) {
	d, err := s.get(ctx, clientID, mediaID)
	if err != nil {
		return nil, nil, err
	}
	if !d.Status.IsFileReady() {
		return nil, nil, ErrNotReady
	}
	if d.FilePath == nil {
		return nil, nil, ErrArtifactMissing
	}

	rc, err := s.storage.Open(ctx, *d.FilePath)
	if errors.Is(err, sttypes.ErrNotFound) {
		s.logger.Warn().
			Str("mediaId", d.MediaID).
			Str("key", *d.FilePath).
			Msg("Finished download has no stored artifact")
		return nil, nil, ErrArtifactMissing
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}

	err = s.datasource.MarkDownloaded(ctx, d, s.now())
	if errors.Is(err, dstypes.ErrConflict) {
		// still servable when another request marked it first
		d, err = s.get(ctx, clientID, mediaID)
		if err == nil && !d.Status.IsFileReady() {
			err = ErrNotFound
		}
	}
	if err != nil {
		rc.Close()
		if errors.Is(err, ErrNotFound) || errors.Is(err, dstypes.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("mark downloaded: %w", err)
	}
	return d, rc, nil
}

// Delete soft deletes the download and removes its artifact. Failed
// downloads never stored one, so storage is left alone for them.
func (s *Service) Delete(ctx context.Context, clientID, mediaID string) (*DeleteResult, error) {
	unlock := s.locks.Lock(mediaID)
	defer unlock()

	d, prior, err := s.markDeleted(ctx, clientID, mediaID)
	if err != nil {
		return nil, err
	}

	if prior != media.StatusFailed && d.FilePath != nil {
		err := s.storage.Delete(ctx, *d.FilePath)
		switch {
		case errors.Is(err, sttypes.ErrNotFound):
			s.logger.Warn().Str("mediaId", d.MediaID).Msg("Artifact already gone on delete")
		case err != nil:
			// the record is already deleted, so nothing will retry this key
			s.logger.Error().
				Err(err).
				Str("clientId", clientID).
				Str("mediaId", mediaID).
				Str("key", *d.FilePath).
				Msg("Failed to remove artifact of deleted download")
			return nil, fmt.Errorf("delete artifact: %w", err)
		}
	}

	s.logger.Info().
		Str("clientId", clientID).
		Str("mediaId", mediaID).
		Str("priorStatus", string(prior)).
		Msg("Download deleted")

	return &DeleteResult{
		MediaID: d.MediaID,
		Status:  media.StatusDeleted,
		IsAudio: d.IsAudio(),
		Title:   d.Title,
	}, nil
}

// markDeleted soft deletes the current record. A status change that lands
// between reading and writing, such as a concurrent retrieval, is read again
// once; a record the sweeper removed meanwhile is reported as not found.
func (s *Service) markDeleted(ctx context.Context, clientID, mediaID string) (*media.Download, media.Status, error) {
	for attempt := 0; ; attempt++ {
		d, err := s.get(ctx, clientID, mediaID)
		if err != nil {
			return nil, "", err
		}
		if !d.Status.IsDeletable() {
			return nil, "", ErrNotDownloaded
		}

		prior := d.Status
		err = s.datasource.MarkDeleted(ctx, d, s.now())
		switch {
		case err == nil:
			return d, prior, nil
		case errors.Is(err, dstypes.ErrNotFound):
			return nil, "", ErrNotFound
		case errors.Is(err, dstypes.ErrConflict) && attempt == 0:
			continue
		default:
			return nil, "", fmt.Errorf("mark deleted: %w", err)
		}
	}
}

// Retry resets a failed or not yet picked up download and schedules it again
// under the same media id.
func (s *Service) Retry(ctx context.Context, clientID, mediaID string) error {
	unlock := s.locks.Lock(mediaID)
	defer unlock()

	d, err := s.get(ctx, clientID, mediaID)
	if err != nil {
		return err
	}
	if !d.Status.IsRetryable() {
		return ErrCannotRetry
	}

	if d.Status == media.StatusStarted && s.runner.IsScheduled(mediaID) {
		return nil
	}

	from := d.Status
	d.ResetForRetry()
	if err := s.datasource.Update(ctx, d, from); err != nil {
		if errors.Is(err, dstypes.ErrConflict) || errors.Is(err, dstypes.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("reset download: %w", err)
	}

	s.logger.Info().Str("clientId", clientID).Str("mediaId", mediaID).Msg("Download retried")
	s.publisher.Put(clientID, media.NewStatusInfo(d))
	s.runner.Schedule(d.Clone())
	return nil
}
