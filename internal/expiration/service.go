// Package expiration purges downloads older than the retention window.
package expiration

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	dstypes "github.com/ytdl/ytdl-api/internal/datasource/types"
	sttypes "github.com/ytdl/ytdl-api/internal/storage/types"
)

// DefaultRetention is how long a download is kept after submission.
const DefaultRetention = 24 * time.Hour

// Result summarizes one sweep.
type Result struct {
	Cutoff  time.Time `json:"cutoff"`
	Matched int       `json:"matched"`
	Blobs   int       `json:"blobs"`
	Deleted int       `json:"deleted"`
}

// Service soft deletes expired downloads and removes their artifacts.
type Service struct {
	datasource dstypes.Datasource
	storage    sttypes.Storage
	retention  time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a sweeper keeping downloads for retention.
func NewService(ds dstypes.Datasource, st sttypes.Storage, retention time.Duration, logger zerolog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		datasource: ds,
		storage:    st,
		retention:  retention,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("component", "expiration").Logger(),
	}
}

// Retention returns the configured retention window.
func (s *Service) Retention() time.Duration {
	return s.retention
}

// Run sweeps relative to the current time.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx, s.now())
	return err
}

// Sweep deletes every download submitted at or before now minus the
// retention window that is not in flight. Missing artifacts are tolerated.
// A download that starts downloading after it was listed keeps its record.
// Running it again with nothing newly eligible changes nothing.
func (s *Service) Sweep(ctx context.Context, now time.Time) (Result, error) {
	cutoff := now.UTC().Add(-s.retention)
	res := Result{Cutoff: cutoff}

	expired, err := s.datasource.ListSubmittedBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("list expired downloads: %w", err)
	}
	res.Matched = len(expired)

	s.logger.Info().
		Time("cutoff", cutoff).
		Int("count", len(expired)).
		Msg("Found expired downloads")

	if len(expired) == 0 {
		return res, nil
	}

	keys := make([]string, 0, len(expired))
	for _, d := range expired {
		if d.FilePath != nil && *d.FilePath != "" {
			keys = append(keys, *d.FilePath)
		}
	}
	res.Blobs = len(keys)

	if err := s.storage.DeleteBatch(ctx, keys, true); err != nil {
		// records stay eligible and are retried on the next sweep
		return res, fmt.Errorf("delete expired artifacts: %w", err)
	}
	s.logger.Info().Int("count", len(keys)).Msg("Deleted expired artifacts from storage")

	deleted, err := s.datasource.DeleteBatch(ctx, expired, now.UTC())
	if err != nil {
		return res, fmt.Errorf("soft delete expired downloads: %w", err)
	}
	res.Deleted = deleted
	if skipped := len(expired) - deleted; skipped > 0 {
		s.logger.Info().Int("count", skipped).Msg("Skipped downloads that changed since they were listed")
	}
	s.logger.Info().Int("count", deleted).Msg("Soft deleted expired downloads from database")

	return res, nil
}
