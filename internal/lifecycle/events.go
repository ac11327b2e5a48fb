package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	dstypes "github.com/ytdl/ytdl-api/internal/datasource/types"
	dltypes "github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// HandleEvent applies one downloader event to d, persists the change and
// publishes the resulting status. Events for the same media id are applied
// one at a time. Writes are not cancelled with ctx so an aborted download
// still records its outcome.
func (s *Service) HandleEvent(ctx context.Context, d *media.Download, e dltypes.Event) error {
	unlock := s.locks.Lock(d.MediaID)
	defer unlock()

	ctx = context.WithoutCancel(ctx)

	switch ev := e.(type) {
	case dltypes.StartedEvent:
		return s.onStarted(ctx, d)
	case dltypes.ProgressEvent:
		return s.onProgress(ctx, d, ev.Progress)
	case dltypes.ConvertingEvent:
		return s.onConverting(ctx, d)
	case dltypes.FinishedEvent:
		return s.onFinished(ctx, d, ev.Path)
	case dltypes.FailedEvent:
		if !media.CanTransition(d.Status, media.StatusFailed) {
			return s.rejected(d, media.StatusFailed)
		}
		return s.fail(ctx, d, ev.Err)
	default:
		return fmt.Errorf("unknown event %T", e)
	}
}

func (s *Service) rejected(d *media.Download, to media.Status) error {
	s.logger.Warn().
		Str("mediaId", d.MediaID).
		Str("from", string(d.Status)).
		Str("to", string(to)).
		Msg("Ignoring event for invalid transition")
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
}

func (s *Service) onStarted(ctx context.Context, d *media.Download) error {
	if d.Status != media.StatusStarted {
		return s.rejected(d, media.StatusDownloading)
	}

	now := s.now()
	d.Status = media.StatusDownloading
	d.Progress = media.NotStarted()
	d.WhenStartedDownload = &now

	if err := s.datasource.Update(ctx, d, media.StatusStarted); err != nil {
		if errors.Is(err, dstypes.ErrConflict) {
			return s.superseded(ctx, d, media.StatusDownloading, err)
		}
		return fmt.Errorf("record download start: %w", err)
	}

	s.logger.Debug().Str("mediaId", d.MediaID).Msg("Download started")
	s.publisher.Put(d.ClientID, media.NewStatusInfo(d))
	return nil
}

func (s *Service) onProgress(ctx context.Context, d *media.Download, p media.Progress) error {
	if d.Status != media.StatusDownloading {
		return s.rejected(d, media.StatusDownloading)
	}

	d.Progress = p
	info := media.NewStatusInfo(d)
	if err := s.datasource.UpdateProgress(ctx, info, media.StatusDownloading); err != nil {
		if errors.Is(err, dstypes.ErrConflict) {
			return s.superseded(ctx, d, media.StatusDownloading, err)
		}
		return fmt.Errorf("record progress: %w", err)
	}

	s.publisher.Put(d.ClientID, info)
	return nil
}

func (s *Service) onConverting(ctx context.Context, d *media.Download) error {
	if d.IsAudio() {
		s.logger.Debug().Str("mediaId", d.MediaID).Msg("Ignoring converting event for audio download")
		return nil
	}
	if !media.CanTransition(d.Status, media.StatusConverting) || d.Status == media.StatusConverting {
		return s.rejected(d, media.StatusConverting)
	}

	d.Status = media.StatusConverting
	d.Progress = media.Indeterminate()
	info := media.NewStatusInfo(d)
	if err := s.datasource.UpdateProgress(ctx, info, media.StatusDownloading); err != nil {
		if errors.Is(err, dstypes.ErrConflict) {
			return s.superseded(ctx, d, media.StatusConverting, err)
		}
		return fmt.Errorf("record converting: %w", err)
	}

	s.logger.Debug().Str("mediaId", d.MediaID).Msg("Download converting")
	s.publisher.Put(d.ClientID, info)
	return nil
}

// onFinished stores the artifact at path. Any failure here is recorded as a
// FAILED transition before the error is returned.
func (s *Service) onFinished(ctx context.Context, d *media.Download, path string) error {
	if d.Status != media.StatusDownloading && d.Status != media.StatusConverting {
		err := s.rejected(d, media.StatusFinished)
		if media.CanTransition(d.Status, media.StatusFailed) {
			return errors.Join(err, s.fail(ctx, d, err))
		}
		return err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return s.failWith(ctx, d, fmt.Errorf("stat artifact: %w", err))
	}

	key, err := s.storage.Save(ctx, d, path)
	if err != nil {
		return s.failWith(ctx, d, fmt.Errorf("save artifact: %w", err))
	}

	now := s.now()
	prior := d.Clone()
	d.Status = media.StatusFinished
	d.Progress = media.Complete()
	d.FilePath = &key
	d.Filesize = stat.Size()
	d.FilesizeHR = humanize.Bytes(uint64(stat.Size()))
	d.WhenDownloadFinished = &now

	if err := s.datasource.Update(ctx, d, prior.Status); err != nil {
		if derr := s.storage.Delete(ctx, key); derr != nil {
			s.logger.Warn().Err(derr).Str("key", key).Msg("Failed to remove orphaned artifact")
		}
		*d = *prior
		if errors.Is(err, dstypes.ErrConflict) {
			return s.superseded(ctx, d, media.StatusFinished, err)
		}
		return s.failWith(ctx, d, fmt.Errorf("record finished download: %w", err))
	}

	s.logger.Info().
		Str("clientId", d.ClientID).
		Str("mediaId", d.MediaID).
		Str("size", d.FilesizeHR).
		Msg("Download finished")
	s.publisher.Put(d.ClientID, media.NewStatusInfo(d))
	return nil
}

// failWith records cause as the failure and returns it, joined with any
// error hit while recording.
func (s *Service) failWith(ctx context.Context, d *media.Download, cause error) error {
	if err := s.fail(ctx, d, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// fail moves d to FAILED and publishes exactly one FAILED status, even when
// the datasource write fails. A record that moved on in the meantime is left
// as stored and nothing is published.
func (s *Service) fail(ctx context.Context, d *media.Download, cause error) error {
	s.logger.Error().
		Err(cause).
		Str("clientId", d.ClientID).
		Str("mediaId", d.MediaID).
		Str("status", string(d.Status)).
		Msg("Download failed")

	err := s.datasource.MarkFailed(ctx, d, s.now())
	if errors.Is(err, dstypes.ErrConflict) {
		return s.superseded(ctx, d, media.StatusFailed, err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("mediaId", d.MediaID).Msg("Failed to record download failure")
		d.Status = media.StatusFailed
		err = fmt.Errorf("record failure: %w", err)
	}

	s.publisher.Put(d.ClientID, media.NewStatusInfo(d))
	return err
}

// superseded handles a write refused because the stored record is no longer
// in the status d was read with, typically after the sweeper deleted it. d is
// synced to what is stored so later events for it are rejected, and nothing
// is published.
func (s *Service) superseded(ctx context.Context, d *media.Download, to media.Status, cause error) error {
	stored, err := s.datasource.Get(ctx, d.ClientID, d.MediaID)
	switch {
	case err == nil:
		*d = *stored
	case errors.Is(err, dstypes.ErrNotFound):
		d.Status = media.StatusDeleted
	default:
		s.logger.Warn().Err(err).Str("mediaId", d.MediaID).Msg("Failed to reload download")
	}

	s.logger.Warn().
		Str("mediaId", d.MediaID).
		Str("status", string(d.Status)).
		Str("to", string(to)).
		Msg("Download changed elsewhere, dropping event")
	return fmt.Errorf("%w: %s -> %s: %w", ErrInvalidTransition, d.Status, to, cause)
}
