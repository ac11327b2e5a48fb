// Package sqlite persists downloads in SQLite through the generated query layer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ytdl/ytdl-api/internal/database/sqlc"
	"github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// Compile-time check that Datasource implements types.Datasource.
var _ types.Datasource = (*Datasource)(nil)

// Datasource is a SQLite-backed download store.
type Datasource struct {
	db      *sql.DB
	queries *sqlc.Queries
	closer  func() error
}

// New wraps an open, migrated connection. closer runs on Close and may be nil.
func New(db *sql.DB, closer func() error) *Datasource {
	return &Datasource{
		db:      db,
		queries: sqlc.New(db),
		closer:  closer,
	}
}

// Type returns the datasource type.
func (ds *Datasource) Type() types.DatasourceType {
	return types.DatasourceTypeSQLite
}

// Put inserts or replaces d.
func (ds *Datasource) Put(ctx context.Context, d *media.Download) error {
	videoStreams, audioStreams, err := encodeStreams(d)
	if err != nil {
		return err
	}

	return ds.queries.CreateDownload(ctx, sqlc.CreateDownloadParams{
		MediaID:              d.MediaID,
		ClientID:             d.ClientID,
		Title:                d.Title,
		Url:                  d.URL,
		Duration:             int64(d.Duration),
		ThumbnailUrl:         d.ThumbnailURL,
		VideoStreams:         videoStreams,
		AudioStreams:         audioStreams,
		VideoStreamID:        nullString(d.VideoStreamID),
		AudioStreamID:        nullString(d.AudioStreamID),
		MediaFormat:          string(d.MediaFormat),
		Status:               string(d.Status),
		Progress:             int64(d.Progress.Wire()),
		Filesize:             d.Filesize,
		FilesizeHr:           d.FilesizeHR,
		FilePath:             nullString(d.FilePath),
		WhenSubmitted:        d.WhenSubmitted.UTC(),
		WhenStartedDownload:  nullTime(d.WhenStartedDownload),
		WhenDownloadFinished: nullTime(d.WhenDownloadFinished),
		WhenFileDownloaded:   nullTime(d.WhenFileDownloaded),
		WhenDeleted:          nullTime(d.WhenDeleted),
		WhenFailed:           nullTime(d.WhenFailed),
	})
}

// Get returns a non-deleted download.
func (ds *Datasource) Get(ctx context.Context, clientID, mediaID string) (*media.Download, error) {
	row, err := ds.queries.GetDownload(ctx, sqlc.GetDownloadParams{
		ClientID: clientID,
		MediaID:  mediaID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToDownload(row)
}

// ListActive returns the client's non-deleted downloads, newest first.
func (ds *Datasource) ListActive(ctx context.Context, clientID string) ([]*media.Download, error) {
	rows, err := ds.queries.ListActiveDownloads(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return rowsToDownloads(rows)
}

// ListSubmittedBefore returns expirable downloads submitted at or before cutoff.
func (ds *Datasource) ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*media.Download, error) {
	rows, err := ds.queries.ListExpirableDownloads(ctx, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	return rowsToDownloads(rows)
}

// Update overwrites the mutable fields of d while its stored status is from.
func (ds *Datasource) Update(ctx context.Context, d *media.Download, from media.Status) error {
	videoStreams, audioStreams, err := encodeStreams(d)
	if err != nil {
		return err
	}

	n, err := ds.queries.UpdateDownload(ctx, sqlc.UpdateDownloadParams{
		Title:                d.Title,
		Url:                  d.URL,
		Duration:             int64(d.Duration),
		ThumbnailUrl:         d.ThumbnailURL,
		VideoStreams:         videoStreams,
		AudioStreams:         audioStreams,
		VideoStreamID:        nullString(d.VideoStreamID),
		AudioStreamID:        nullString(d.AudioStreamID),
		MediaFormat:          string(d.MediaFormat),
		Status:               string(d.Status),
		Progress:             int64(d.Progress.Wire()),
		Filesize:             d.Filesize,
		FilesizeHr:           d.FilesizeHR,
		FilePath:             nullString(d.FilePath),
		WhenStartedDownload:  nullTime(d.WhenStartedDownload),
		WhenDownloadFinished: nullTime(d.WhenDownloadFinished),
		WhenFileDownloaded:   nullTime(d.WhenFileDownloaded),
		WhenDeleted:          nullTime(d.WhenDeleted),
		WhenFailed:           nullTime(d.WhenFailed),
		MediaID:              d.MediaID,
		ExpectedStatus:       string(from),
	})
	return ds.affected(ctx, n, err, d.MediaID)
}

// UpdateProgress writes status and progress only.
func (ds *Datasource) UpdateProgress(ctx context.Context, info media.StatusInfo, from media.Status) error {
	if info.Progress == nil {
		n, err := ds.queries.UpdateDownloadStatus(ctx, sqlc.UpdateDownloadStatusParams{
			Status:         string(info.Status),
			MediaID:        info.MediaID,
			ExpectedStatus: string(from),
		})
		return ds.affected(ctx, n, err, info.MediaID)
	}
	n, err := ds.queries.UpdateDownloadProgress(ctx, sqlc.UpdateDownloadProgressParams{
		Status:         string(info.Status),
		Progress:       int64(info.Progress.Wire()),
		MediaID:        info.MediaID,
		ExpectedStatus: string(from),
	})
	return ds.affected(ctx, n, err, info.MediaID)
}

// MarkDeleted soft deletes d.
func (ds *Datasource) MarkDeleted(ctx context.Context, d *media.Download, when time.Time) error {
	when = when.UTC()
	n, err := ds.queries.MarkDownloadDeleted(ctx, sqlc.MarkDownloadDeletedParams{
		WhenDeleted:    nullTime(&when),
		MediaID:        d.MediaID,
		ExpectedStatus: string(d.Status),
	})
	if err := ds.affected(ctx, n, err, d.MediaID); err != nil {
		return err
	}
	types.ApplyDeleted(d, when)
	return nil
}

// MarkDownloaded records client retrieval of d.
func (ds *Datasource) MarkDownloaded(ctx context.Context, d *media.Download, when time.Time) error {
	when = when.UTC()
	n, err := ds.queries.MarkDownloadDownloaded(ctx, sqlc.MarkDownloadDownloadedParams{
		WhenFileDownloaded: nullTime(&when),
		MediaID:            d.MediaID,
		ExpectedStatus:     string(d.Status),
	})
	if err := ds.affected(ctx, n, err, d.MediaID); err != nil {
		return err
	}
	types.ApplyDownloaded(d, when)
	return nil
}

// MarkFailed records the failure of d.
func (ds *Datasource) MarkFailed(ctx context.Context, d *media.Download, when time.Time) error {
	when = when.UTC()
	n, err := ds.queries.MarkDownloadFailed(ctx, sqlc.MarkDownloadFailedParams{
		WhenFailed:     nullTime(&when),
		MediaID:        d.MediaID,
		ExpectedStatus: string(d.Status),
	})
	if err := ds.affected(ctx, n, err, d.MediaID); err != nil {
		return err
	}
	types.ApplyFailed(d, when)
	return nil
}

// DeleteBatch soft deletes the still expirable downloads in one transaction.
func (ds *Datasource) DeleteBatch(ctx context.Context, downloads []*media.Download, when time.Time) (int, error) {
	if len(downloads) == 0 {
		return 0, nil
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	q := ds.queries.WithTx(tx)
	when = when.UTC()
	var expired []*media.Download
	for _, d := range downloads {
		n, err := q.ExpireDownload(ctx, sqlc.ExpireDownloadParams{
			WhenDeleted: nullTime(&when),
			MediaID:     d.MediaID,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", d.MediaID, err)
		}
		if n > 0 {
			expired = append(expired, d)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	for _, d := range expired {
		types.ApplyDeleted(d, when)
	}
	return len(expired), nil
}

// CountByStatus returns the number of records per status.
func (ds *Datasource) CountByStatus(ctx context.Context) (map[media.Status]int64, error) {
	rows, err := ds.queries.CountDownloadsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[media.Status]int64, len(rows))
	for _, row := range rows {
		counts[media.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// Clear removes every record.
func (ds *Datasource) Clear(ctx context.Context) error {
	return ds.queries.DeleteAllDownloads(ctx)
}

// Close runs the closer passed to New.
func (ds *Datasource) Close() error {
	if ds.closer != nil {
		return ds.closer()
	}
	return nil
}

// affected maps a conditional write that touched no row to ErrConflict when
// the record exists under another status and to ErrNotFound otherwise.
func (ds *Datasource) affected(ctx context.Context, n int64, err error, mediaID string) error {
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	status, err := ds.queries.GetDownloadStatus(ctx, mediaID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, mediaID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", types.ErrConflict, mediaID, status)
}

func encodeStreams(d *media.Download) (video, audio string, err error) {
	vs := d.VideoStreams
	if vs == nil {
		vs = []media.VideoStream{}
	}
	as := d.AudioStreams
	if as == nil {
		as = []media.AudioStream{}
	}
	vb, err := json.Marshal(vs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode video streams: %w", err)
	}
	ab, err := json.Marshal(as)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode audio streams: %w", err)
	}
	return string(vb), string(ab), nil
}

func rowsToDownloads(rows []*sqlc.Download) ([]*media.Download, error) {
	result := make([]*media.Download, 0, len(rows))
	for _, row := range rows {
		d, err := rowToDownload(row)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

func rowToDownload(row *sqlc.Download) (*media.Download, error) {
	d := &media.Download{
		ClientID:             row.ClientID,
		MediaID:              row.MediaID,
		Title:                row.Title,
		URL:                  row.Url,
		Duration:             int(row.Duration),
		ThumbnailURL:         row.ThumbnailUrl,
		VideoStreamID:        stringPtr(row.VideoStreamID),
		AudioStreamID:        stringPtr(row.AudioStreamID),
		MediaFormat:          media.MediaFormat(row.MediaFormat),
		Status:               media.Status(row.Status),
		Progress:             media.FromWire(int(row.Progress)),
		Filesize:             row.Filesize,
		FilesizeHR:           row.FilesizeHr,
		FilePath:             stringPtr(row.FilePath),
		WhenSubmitted:        row.WhenSubmitted.UTC(),
		WhenStartedDownload:  timePtr(row.WhenStartedDownload),
		WhenDownloadFinished: timePtr(row.WhenDownloadFinished),
		WhenFileDownloaded:   timePtr(row.WhenFileDownloaded),
		WhenDeleted:          timePtr(row.WhenDeleted),
		WhenFailed:           timePtr(row.WhenFailed),
	}
	if err := json.Unmarshal([]byte(row.VideoStreams), &d.VideoStreams); err != nil {
		return nil, fmt.Errorf("failed to decode video streams of %s: %w", row.MediaID, err)
	}
	if err := json.Unmarshal([]byte(row.AudioStreams), &d.AudioStreams); err != nil {
		return nil, fmt.Errorf("failed to decode audio streams of %s: %w", row.MediaID, err)
	}
	return d, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
