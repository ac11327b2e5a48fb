// Package postgres persists downloads in PostgreSQL using gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// Compile-time check that Datasource implements types.Datasource.
var _ types.Datasource = (*Datasource)(nil)

// unexpirable lists the statuses the sweeper leaves alone.
var unexpirable = []string{
	string(media.StatusDeleted), string(media.StatusDownloading), string(media.StatusConverting),
}

// DownloadModel is the gorm row for a download.
type DownloadModel struct {
	MediaID              string `gorm:"primaryKey"`
	ClientID             string `gorm:"index:idx_client_submitted,priority:1;not null"`
	Title                string
	URL                  string `gorm:"not null"`
	Duration             int
	ThumbnailURL         string
	VideoStreams         string `gorm:"type:jsonb;not null;default:'[]'"`
	AudioStreams         string `gorm:"type:jsonb;not null;default:'[]'"`
	VideoStreamID        *string
	AudioStreamID        *string
	MediaFormat          string `gorm:"not null"`
	Status               string `gorm:"index;not null"`
	Progress             int
	Filesize             int64
	FilesizeHR           string
	FilePath             *string
	WhenSubmitted        time.Time `gorm:"index:idx_client_submitted,priority:2;not null"`
	WhenStartedDownload  *time.Time
	WhenDownloadFinished *time.Time
	WhenFileDownloaded   *time.Time
	WhenDeleted          *time.Time
	WhenFailed           *time.Time
}

// TableName pins the table name.
func (DownloadModel) TableName() string {
	return "downloads"
}

// Datasource is a PostgreSQL-backed download store.
type Datasource struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the downloads table.
func Open(ctx context.Context, dsn string) (*Datasource, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	ds := New(db)
	if err := ds.Migrate(ctx); err != nil {
		ds.Close()
		return nil, err
	}
	return ds, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Datasource {
	return &Datasource{db: db}
}

// Migrate creates or updates the downloads table.
func (ds *Datasource) Migrate(ctx context.Context) error {
	if err := ds.db.WithContext(ctx).AutoMigrate(&DownloadModel{}); err != nil {
		return fmt.Errorf("failed to migrate downloads table: %w", err)
	}
	return nil
}

// Type returns the datasource type.
func (ds *Datasource) Type() types.DatasourceType {
	return types.DatasourceTypePostgres
}

// Put inserts or replaces d.
func (ds *Datasource) Put(ctx context.Context, d *media.Download) error {
	m, err := toModel(d)
	if err != nil {
		return err
	}
	return ds.db.WithContext(ctx).Save(m).Error
}

// Get returns a non-deleted download.
func (ds *Datasource) Get(ctx context.Context, clientID, mediaID string) (*media.Download, error) {
	var m DownloadModel
	err := ds.db.WithContext(ctx).
		Where("client_id = ? AND media_id = ? AND status <> ?", clientID, mediaID, media.StatusDeleted).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromModel(&m)
}

// ListActive returns the client's non-deleted downloads, newest first.
func (ds *Datasource) ListActive(ctx context.Context, clientID string) ([]*media.Download, error) {
	var rows []DownloadModel
	err := ds.db.WithContext(ctx).
		Where("client_id = ? AND status <> ?", clientID, media.StatusDeleted).
		Order("when_submitted DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// ListSubmittedBefore returns expirable downloads submitted at or before cutoff.
func (ds *Datasource) ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*media.Download, error) {
	var rows []DownloadModel
	err := ds.db.WithContext(ctx).
		Where("when_submitted <= ? AND status NOT IN ?", cutoff.UTC(), unexpirable).
		Order("when_submitted").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// Update overwrites the stored record while its status is from.
func (ds *Datasource) Update(ctx context.Context, d *media.Download, from media.Status) error {
	m, err := toModel(d)
	if err != nil {
		return err
	}
	res := ds.db.WithContext(ctx).Model(&DownloadModel{MediaID: d.MediaID}).
		Where("status = ?", string(from)).
		Select("*").Omit("media_id", "client_id", "when_submitted").
		Updates(m)
	return ds.affected(ctx, res, d.MediaID)
}

// UpdateProgress writes status and progress only.
func (ds *Datasource) UpdateProgress(ctx context.Context, info media.StatusInfo, from media.Status) error {
	values := map[string]any{"status": string(info.Status)}
	if info.Progress != nil {
		values["progress"] = info.Progress.Wire()
	}
	res := ds.db.WithContext(ctx).Model(&DownloadModel{}).
		Where("media_id = ? AND status = ?", info.MediaID, string(from)).
		Updates(values)
	return ds.affected(ctx, res, info.MediaID)
}

// MarkDeleted soft deletes d.
func (ds *Datasource) MarkDeleted(ctx context.Context, d *media.Download, when time.Time) error {
	return ds.mark(ctx, d, when, types.ApplyDeleted, "when_deleted")
}

// MarkDownloaded records client retrieval of d.
func (ds *Datasource) MarkDownloaded(ctx context.Context, d *media.Download, when time.Time) error {
	return ds.mark(ctx, d, when, types.ApplyDownloaded, "when_file_downloaded")
}

// MarkFailed records the failure of d.
func (ds *Datasource) MarkFailed(ctx context.Context, d *media.Download, when time.Time) error {
	return ds.mark(ctx, d, when, types.ApplyFailed, "when_failed")
}

// DeleteBatch soft deletes the still expirable downloads with a single
// statement and applies the change to the rows it returned.
func (ds *Datasource) DeleteBatch(ctx context.Context, downloads []*media.Download, when time.Time) (int, error) {
	if len(downloads) == 0 {
		return 0, nil
	}
	when = when.UTC()
	ids := make([]string, 0, len(downloads))
	for _, d := range downloads {
		ids = append(ids, d.MediaID)
	}

	var rows []DownloadModel
	err := ds.db.WithContext(ctx).Model(&rows).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "media_id"}}}).
		Where("media_id IN ? AND status NOT IN ?", ids, unexpirable).
		Updates(map[string]any{
			"status":       string(media.StatusDeleted),
			"when_deleted": when,
		}).Error
	if err != nil {
		return 0, err
	}

	deleted := make(map[string]bool, len(rows))
	for _, row := range rows {
		deleted[row.MediaID] = true
	}
	for _, d := range downloads {
		if deleted[d.MediaID] {
			types.ApplyDeleted(d, when)
		}
	}
	return len(rows), nil
}

// Clear removes every record.
func (ds *Datasource) Clear(ctx context.Context) error {
	return ds.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&DownloadModel{}).Error
}

// Close closes the underlying connection pool.
func (ds *Datasource) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mark moves d from its current status to the one apply sets, stamping column.
func (ds *Datasource) mark(ctx context.Context, d *media.Download, when time.Time, apply func(*media.Download, time.Time), column string) error {
	next := d.Clone()
	apply(next, when)
	res := ds.db.WithContext(ctx).Model(&DownloadModel{}).
		Where("media_id = ? AND status = ?", d.MediaID, string(d.Status)).
		Updates(map[string]any{
			"status": string(next.Status),
			column:   when.UTC(),
		})
	if err := ds.affected(ctx, res, d.MediaID); err != nil {
		return err
	}
	apply(d, when)
	return nil
}

// affected maps a conditional write that touched no row to ErrConflict when
// the record exists under another status and to ErrNotFound otherwise.
func (ds *Datasource) affected(ctx context.Context, res *gorm.DB, mediaID string) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var m DownloadModel
	err := ds.db.WithContext(ctx).Select("media_id", "status").
		Where("media_id = ?", mediaID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, mediaID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", types.ErrConflict, mediaID, m.Status)
}

func toModel(d *media.Download) (*DownloadModel, error) {
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
		return nil, err
	}
	ab, err := json.Marshal(as)
	if err != nil {
		return nil, err
	}
	return &DownloadModel{
		MediaID:              d.MediaID,
		ClientID:             d.ClientID,
		Title:                d.Title,
		URL:                  d.URL,
		Duration:             d.Duration,
		ThumbnailURL:         d.ThumbnailURL,
		VideoStreams:         string(vb),
		AudioStreams:         string(ab),
		VideoStreamID:        d.VideoStreamID,
		AudioStreamID:        d.AudioStreamID,
		MediaFormat:          string(d.MediaFormat),
		Status:               string(d.Status),
		Progress:             d.Progress.Wire(),
		Filesize:             d.Filesize,
		FilesizeHR:           d.FilesizeHR,
		FilePath:             d.FilePath,
		WhenSubmitted:        d.WhenSubmitted.UTC(),
		WhenStartedDownload:  d.WhenStartedDownload,
		WhenDownloadFinished: d.WhenDownloadFinished,
		WhenFileDownloaded:   d.WhenFileDownloaded,
		WhenDeleted:          d.WhenDeleted,
		WhenFailed:           d.WhenFailed,
	}, nil
}

func fromModels(rows []DownloadModel) ([]*media.Download, error) {
	result := make([]*media.Download, 0, len(rows))
	for i := range rows {
		d, err := fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

func fromModel(m *DownloadModel) (*media.Download, error) {
	d := &media.Download{
		ClientID:             m.ClientID,
		MediaID:              m.MediaID,
		Title:                m.Title,
		URL:                  m.URL,
		Duration:             m.Duration,
		ThumbnailURL:         m.ThumbnailURL,
		VideoStreamID:        m.VideoStreamID,
		AudioStreamID:        m.AudioStreamID,
		MediaFormat:          media.MediaFormat(m.MediaFormat),
		Status:               media.Status(m.Status),
		Progress:             media.FromWire(m.Progress),
		Filesize:             m.Filesize,
		FilesizeHR:           m.FilesizeHR,
		FilePath:             m.FilePath,
		WhenSubmitted:        m.WhenSubmitted.UTC(),
		WhenStartedDownload:  utc(m.WhenStartedDownload),
		WhenDownloadFinished: utc(m.WhenDownloadFinished),
		WhenFileDownloaded:   utc(m.WhenFileDownloaded),
		WhenDeleted:          utc(m.WhenDeleted),
		WhenFailed:           utc(m.WhenFailed),
	}
	if err := json.Unmarshal([]byte(m.VideoStreams), &d.VideoStreams); err != nil {
		return nil, fmt.Errorf("failed to decode video streams of %s: %w", m.MediaID, err)
	}
	if err := json.Unmarshal([]byte(m.AudioStreams), &d.AudioStreams); err != nil {
		return nil, fmt.Errorf("failed to decode audio streams of %s: %w", m.MediaID, err)
	}
	return d, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
